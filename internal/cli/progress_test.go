package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/coffer/internal/model"
)

func TestImportProgress(t *testing.T) {
	var out bytes.Buffer
	p := NewImportProgress(&out, "Importing")

	p.Update(1, model.RowOutcome{Line: 1, TransactionID: 1})
	p.Update(2, model.RowOutcome{Line: 2, Err: errors.New("bad date")})
	p.Update(3, model.RowOutcome{Line: 3, TransactionID: 2})
	p.Finish()

	assert.Equal(t, 1, p.Failed())
	assert.NotEmpty(t, out.String())
}
