package logging

import (
	"fmt"
	"io"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGraylogWriter connects a GELF UDP writer for shipping logs to Graylog.
// The returned writer can be combined with the log file via io.MultiWriter
// and handed to SlogManager.Setup.
func NewGraylogWriter(address string) (io.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("error connecting to graylog at %s: %w", address, err)
	}
	return w, nil
}
