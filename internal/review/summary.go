package review

import "github.com/hitoshi/stagelog/internal/model"

// Summarize は公開行のうち評価を持つものから平均評価を計算する。
// 評価が1件もない場合Averageはnilのまま返す。
func Summarize(reviews []*model.PublicReview) model.RatingSummary {
	ratings := make([]float64, 0, len(reviews))
	for _, rv := range reviews {
		if rv.Rating != nil {
			ratings = append(ratings, *rv.Rating)
		}
	}
	return summarizeRatings(ratings)
}

func summarizeRatings(ratings []float64) model.RatingSummary {
	if len(ratings) == 0 {
		return model.RatingSummary{}
	}
	var sum float64
	for _, r := range ratings {
		sum += r
	}
	avg := sum / float64(len(ratings))
	return model.RatingSummary{Average: &avg, Count: len(ratings)}
}
