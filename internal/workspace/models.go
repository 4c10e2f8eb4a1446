package workspace

import (
	"strings"
	"time"
)

// sizeOverheadBytes is the fixed per-item accounting overhead added on top
// of the title and content byte lengths. Keeping it constant makes quota
// accounting reproducible from title+content alone.
const sizeOverheadBytes = 128

// Item is a saved content unit owned by exactly one account, addressed by
// a unique short code. Deleted items keep their row and their code.
type Item struct {
	Code           string            `json:"code"`
	OwnerAccountID string            `json:"owner_account_id"`
	SourceApp      string            `json:"source_app"`
	ItemType       string            `json:"item_type"`
	Title          string            `json:"title"`
	Content        string            `json:"content"`
	Metadata       map[string]string `json:"metadata"`
	SizeBytes      int64             `json:"size_bytes"`
	WordCount      int               `json:"word_count"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	IsDeleted      bool              `json:"-"`
}

// SizeBytes computes the deterministic storage cost of an item.
func SizeBytes(title, content string) int64 {
	return int64(len(title)) + int64(len(content)) + sizeOverheadBytes
}

// WordCount counts whitespace-separated words in the content.
func WordCount(content string) int {
	return len(strings.Fields(content))
}
