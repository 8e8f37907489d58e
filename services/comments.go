package services

import (
	"fmt"
	"strings"

	"post-digest/models"
)

const commentOutlineHeader = "댓글 전체 목록 (원댓글/대댓글 구조):"

// CommentOutline 은 댓글을 요약 입력에 붙일 들여쓰기 목록으로 만든다.
// 내용이 빈 댓글은 제외한다. 깊이마다 공백 두 칸을 들여 쓴다.
func CommentOutline(comments []models.CommentDraft) []string {
	authors := make(map[string]string, len(comments))
	for _, c := range comments {
		if c.ExternalID != "" {
			authors[c.ExternalID] = authorOrUnknown(c.Author)
		}
	}

	var lines []string
	for _, c := range comments {
		content := strings.TrimSpace(c.Content)
		if content == "" {
			continue
		}
		depth := c.Depth
		if depth < 0 {
			depth = 0
		}

		label := "[원댓글]"
		if depth > 0 {
			if parent, ok := authors[c.ParentExternalID]; ok && c.ParentExternalID != "" {
				label = fmt.Sprintf("[대댓글 → %s]", parent)
			} else {
				label = "[대댓글]"
			}
		}

		score := ""
		if c.Score != nil {
			score = fmt.Sprintf(" (+%d)", *c.Score)
		}
		lines = append(lines, fmt.Sprintf("%s%s %s%s: %s", strings.Repeat("  ", depth), label, authorOrUnknown(c.Author), score, content))
	}
	return lines
}

// ComposeSummaryInput 은 본문 뒤에 댓글 목록을 붙인다. 댓글이 없으면 본문 그대로다.
func ComposeSummaryInput(body string, comments []models.CommentDraft) string {
	lines := CommentOutline(comments)
	if len(lines) == 0 {
		return body
	}
	return body + "\n\n" + commentOutlineHeader + "\n" + strings.Join(lines, "\n")
}

func authorOrUnknown(author string) string {
	if strings.TrimSpace(author) == "" {
		return "unknown"
	}
	return author
}
