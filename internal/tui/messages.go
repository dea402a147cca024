package tui

import "github.com/Veraticus/coffer/internal/model"

// pageLoadedMsg carries one keyset page and the store's row count.
type pageLoadedMsg struct {
	err   error
	page  []model.Transaction
	total int
}
