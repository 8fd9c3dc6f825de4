//
//  Copyright © Manetu Inc. All rights reserved.
//

package accesslog

import (
	"encoding/json"
	"io"
	"os"
	"sync"
)

// AccessLogOptions configures an [IoWriterStream].
type AccessLogOptions struct {
	// PrettyPrint writes indented multi-line JSON instead of one line per
	// record.
	PrettyPrint bool
}

// IoWriterFactory creates streams writing to an [io.Writer].
type IoWriterFactory struct {
	writer  io.Writer
	options AccessLogOptions
}

// IoWriterStream writes each record as JSON followed by a newline. Writes are
// serialized so records never interleave.
type IoWriterStream struct {
	mu      sync.Mutex
	enc     *json.Encoder
	options AccessLogOptions
}

// NewStdoutFactory writes records to stdout. It is the engine default.
func NewStdoutFactory() Factory {
	return NewIoWriterFactory(os.Stdout)
}

// NewIoWriterFactory writes compact records to w.
func NewIoWriterFactory(w io.Writer) Factory {
	return NewIoWriterFactoryWithOptions(w, AccessLogOptions{})
}

// NewIoWriterFactoryWithOptions writes records to w formatted per opts.
//
//	factory := accesslog.NewIoWriterFactoryWithOptions(os.Stdout, accesslog.AccessLogOptions{
//	    PrettyPrint: true,
//	})
func NewIoWriterFactoryWithOptions(w io.Writer, opts AccessLogOptions) Factory {
	return &IoWriterFactory{writer: w, options: opts}
}

// NewStream returns an [IoWriterStream] on the configured writer.
func (f *IoWriterFactory) NewStream() (Stream, error) {
	return newStream(f.writer, f.options), nil
}

func newStream(w io.Writer, opts AccessLogOptions) *IoWriterStream {
	enc := json.NewEncoder(w)
	if opts.PrettyPrint {
		enc.SetIndent("", "  ")
	}
	return &IoWriterStream{enc: enc, options: opts}
}

// Send encodes record. Write failures are returned to the engine, which logs
// them.
func (s *IoWriterStream) Send(record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(record)
}

// Close leaves the writer open; its owner closes it.
func (s *IoWriterStream) Close() {}
