package store

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestInsertResult_String(t *testing.T) {
	assert.Equal(t, "inserted", Inserted.String())
	assert.Equal(t, "duplicate_skipped", DuplicateSkipped.String())
	assert.Equal(t, "unknown", InsertResult(0).String())
}

func TestError_Message(t *testing.T) {
	err := &Error{
		Op:             "insert filing",
		CIK:            "0000012345",
		Filename:       "edgar/data/12345/acme.txt",
		MissingCompany: true,
		Err:            errors.New("fk"),
	}
	assert.Equal(t,
		"store: insert filing cik=0000012345 filename=edgar/data/12345/acme.txt: company does not exist: fk",
		err.Error())
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(errors.New("plain")))
	assert.False(t, IsFatal(&Error{Op: "x"}))
	assert.True(t, IsFatal(&Error{Op: "x", Fatal: true}))
	assert.True(t, IsFatal(eris.Wrap(&Error{Op: "x", Fatal: true}, "ingest: load")))
}
