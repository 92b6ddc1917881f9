package pages

import "strings"

// Pagination describes one page of a paginated document.
type Pagination struct {
	Page              int    `json:"page"`
	PageSize          int    `json:"page_size"`
	TotalPages        int    `json:"total_pages"`
	TotalTokens       int    `json:"total_tokens"`
	HasNext           bool   `json:"has_next"`
	HasPrevious       bool   `json:"has_previous"`
	Offset            int    `json:"offset"`
	Limit             int    `json:"limit"`
	ContinuationToken string `json:"continuation_token,omitempty"`
}

// Paginate slices content into the requested 1-based page with a page-size
// budget in tokens. The page number is clamped into [1, total pages].
//
// When the page does not end at the true end of content, the boundary is
// pulled back to the last newline inside the slice, but only if that
// newline lies within the final 20% of the slice. This avoids aggressive
// truncation on documents with sparse line breaks.
func Paginate(content string, page, pageSize int) (string, Pagination) {
	if pageSize < 1 {
		pageSize = 1
	}

	totalTokens := EstimateTokens(content)
	charLimit := pageSize * 4
	totalChars := len(content)

	totalPages := (totalTokens + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	offset := (page - 1) * charLimit

	if offset >= totalChars {
		return "", Pagination{
			Page:        page,
			PageSize:    pageSize,
			TotalPages:  totalPages,
			TotalTokens: totalTokens,
			HasNext:     false,
			HasPrevious: page > 1,
			Offset:      offset,
			Limit:       offset,
		}
	}

	end := offset + charLimit
	if end > totalChars {
		end = totalChars
	}
	pageContent := content[offset:end]

	// Snap to the last newline unless this is the final page.
	if end < totalChars {
		if lastNewline := strings.LastIndexByte(pageContent, '\n'); float64(lastNewline) > float64(charLimit)*0.8 {
			pageContent = pageContent[:lastNewline]
			end = offset + lastNewline
		}
	}

	return pageContent, Pagination{
		Page:        page,
		PageSize:    pageSize,
		TotalPages:  totalPages,
		TotalTokens: totalTokens,
		HasNext:     end < totalChars,
		HasPrevious: page > 1,
		Offset:      offset,
		Limit:       end,
	}
}
