package tokens

import (
	"context"
	"encoding/json"
	"os"

	"github.com/gravitational/trace"
)

// fileStore keeps the credential record as a single JSON file. Absence of
// the file is the normal cold state, not corruption.
type fileStore struct {
	filename string
}

// NewFileStore returns a Store backed by a JSON file at filename.
func NewFileStore(filename string) Store {
	return &fileStore{filename: filename}
}

func (f *fileStore) GetRecord(_ context.Context) (*Record, error) {
	payload, err := os.ReadFile(f.filename)
	if os.IsNotExist(err) {
		return nil, trace.NotFound("no credential record at %v", f.filename)
	} else if err != nil {
		return nil, trace.ConvertSystemError(err)
	}

	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, trace.BadParameter("credential record is malformed: %v", err)
	}
	if record.AccessToken == "" {
		return nil, trace.BadParameter("credential record is missing accessToken")
	}
	if record.ClientID == "" {
		return nil, trace.BadParameter("credential record is missing clientId")
	}

	return &record, nil
}

func (f *fileStore) PutRecord(_ context.Context, record *Record) error {
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return trace.Wrap(err)
	}
	return trace.ConvertSystemError(os.WriteFile(f.filename, payload, 0600))
}
