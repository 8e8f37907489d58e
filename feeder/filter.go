package feeder

import "time"

// Filter 는 크롤 한 주기에서 업서트할 게시물을 고른다.
// 0 값 필드는 해당 조건을 적용하지 않는다.
type Filter struct {
	AllowedSubjects []string
	// 댓글이 쌓일 시간을 주기 위해 MinAge 보다 새 글은 다음 주기로 미룬다.
	MinAge   time.Duration
	MaxAge   time.Duration
	MaxPosts int
}

// Apply 는 순서를 유지한 채 조건을 만족하는 게시물만 남긴다.
// 나이 조건이 있을 때 작성 시각을 알 수 없는 글은 버린다.
func (f Filter) Apply(posts []Post, now time.Time) []Post {
	allowed := make(map[string]struct{}, len(f.AllowedSubjects))
	for _, s := range f.AllowedSubjects {
		allowed[s] = struct{}{}
	}

	var out []Post
	for _, p := range posts {
		if len(allowed) > 0 {
			if _, ok := allowed[p.Subject()]; !ok {
				continue
			}
		}
		if f.MinAge > 0 || f.MaxAge > 0 {
			published, ok := p.PublishedAt()
			if !ok {
				continue
			}
			age := now.Sub(published)
			if f.MinAge > 0 && age < f.MinAge {
				continue
			}
			if f.MaxAge > 0 && age > f.MaxAge {
				continue
			}
		}
		out = append(out, p)
		if f.MaxPosts > 0 && len(out) >= f.MaxPosts {
			break
		}
	}
	return out
}
