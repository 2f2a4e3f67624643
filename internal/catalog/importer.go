package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/hitoshi/stagelog/internal/model"
)

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// ImportResult はフィード取り込みの集計結果。
type ImportResult struct {
	Submitted  int
	Duplicates int
	Skipped    int
}

// Importer は会場の上演情報フィード（RSS/Atom）から演目を一括投稿する。
// 取り込んだ演目は承認待ちとして登録され、項目ごとの管理者通知は行わない。
type Importer struct {
	service     *Service
	ssrfGuard   SSRFValidator
	timeout     time.Duration
	maxBodySize int64
}

// NewImporter はImporterを生成する。
func NewImporter(service *Service, ssrfGuard SSRFValidator, timeout time.Duration, maxBodySize int64) *Importer {
	return &Importer{
		service:     service,
		ssrfGuard:   ssrfGuard,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// ImportFeed はフィードを取得・パースし、各項目を承認待ちの演目として投稿する。
// 重複タイトルはDuplicates、必須項目の欠けた項目はSkippedとして数える。
func (im *Importer) ImportFeed(ctx context.Context, feedURL, adminID string) (*ImportResult, error) {
	feedURL = strings.TrimSpace(feedURL)
	if err := im.ssrfGuard.ValidateURL(feedURL); err != nil {
		slog.Warn("catalog import blocked",
			slog.String("url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewSSRFBlockedError()
	}

	body, contentType, err := im.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	// 会場ページのURLが渡された場合はheadのフィードリンクを辿る
	if !isFeedDocument(contentType, body) && isHTMLDocument(contentType) {
		linked := pickFeedLink(feedLinksFromHTML(body, feedURL), feedURL)
		if linked == "" {
			return nil, model.NewImportFailedError("ページにRSS/Atomフィードのリンクがありません")
		}
		if err := im.ssrfGuard.ValidateURL(linked); err != nil {
			slog.Warn("catalog import blocked",
				slog.String("url", linked),
				slog.String("error", err.Error()),
			)
			return nil, model.NewSSRFBlockedError()
		}
		slog.Info("catalog import feed discovered",
			slog.String("page_url", feedURL),
			slog.String("feed_url", linked),
		)
		feedURL = linked
		if body, _, err = im.fetch(ctx, feedURL); err != nil {
			return nil, err
		}
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, model.NewImportFailedError("RSS/Atomとして解析できません")
	}

	base := feedURL
	if parsed.Link != "" {
		base = parsed.Link
	}

	result := &ImportResult{}
	for _, item := range parsed.Items {
		in := SubmitShowInput{
			Title:       item.Title,
			PhotoURL:    itemImageURL(item, base),
			Description: item.Description,
		}

		_, err := im.service.createPending(ctx, in, adminID)
		var apiErr *model.APIError
		switch {
		case err == nil:
			result.Submitted++
		case errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeDuplicateTitle:
			result.Duplicates++
		case errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeValidationFailed:
			result.Skipped++
		default:
			return nil, err
		}
	}

	im.service.metrics.RecordShowsImported(result.Submitted)
	slog.Info("catalog import finished",
		slog.String("url", feedURL),
		slog.String("user_id", adminID),
		slog.Int("submitted", result.Submitted),
		slog.Int("duplicates", result.Duplicates),
		slog.Int("skipped", result.Skipped),
	)

	return result, nil
}

// fetch はSSRF防止クライアントで本文とContent-Typeを取得する。
func (im *Importer) fetch(ctx context.Context, feedURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, "", model.NewImportFailedError("URLが不正です")
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/html;q=0.8, */*;q=0.5")

	resp, err := im.ssrfGuard.NewSafeClient(im.timeout).Do(req)
	if err != nil {
		slog.Warn("catalog import fetch failed",
			slog.String("url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, "", model.NewImportFailedError("フィードを取得できません")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", model.NewImportFailedError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, im.maxBodySize+1))
	if err != nil {
		return nil, "", model.NewImportFailedError("レスポンスを読み取れません")
	}
	if int64(len(body)) > im.maxBodySize {
		return nil, "", model.NewImportFailedError("フィードのサイズが上限を超えています")
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// itemImageURL は項目の画像URLを返す。
// item.Image、画像エンクロージャー、本文HTML中の最初の<img>の順に探す。
func itemImageURL(item *gofeed.Item, base string) string {
	if item.Image != nil && item.Image.URL != "" {
		return resolveURL(base, item.Image.URL)
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return resolveURL(base, enc.URL)
		}
	}
	for _, fragment := range []string{item.Content, item.Description} {
		if src := firstImageSrc(fragment); src != "" {
			return resolveURL(base, src)
		}
	}
	return ""
}

// firstImageSrc はHTML断片から最初の<img src>を取り出す。
func firstImageSrc(fragment string) string {
	if fragment == "" {
		return ""
	}
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			if string(tn) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if strings.EqualFold(string(key), "src") && len(val) > 0 {
					return strings.TrimSpace(string(val))
				}
				if !more {
					break
				}
			}
		}
	}
}

// resolveURL は相対URLをbaseに対して解決する。解決できなければrefをそのまま返す。
func resolveURL(base, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
