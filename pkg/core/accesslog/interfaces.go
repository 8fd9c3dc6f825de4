//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package accesslog records authorization decisions for audit.
//
// Every decision made through [core.Engine] produces one [Record] unless the
// check runs in probe mode. Records are handed to a [Stream] obtained once
// from the [Factory] given to the engine.
//
// # Built-in Implementations
//
//   - [NewStdoutFactory]: JSON lines on stdout (the default)
//   - [NewIoWriterFactory]: JSON lines on any io.Writer
//   - [NewNullFactory]: discards records
//
// A custom destination implements both interfaces and is installed with
// [options.WithAccessLog]:
//
//	type fileFactory struct{ path string }
//
//	func (f *fileFactory) NewStream() (accesslog.Stream, error) {
//	    w, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return &fileStream{w: w}, nil
//	}
package accesslog

// Factory creates the [Stream] of an engine.
//
// Cheap setup belongs in the factory constructor. Opening connections or
// files belongs in NewStream, which is called after configuration is
// loaded.
type Factory interface {
	NewStream() (Stream, error)
}

// Stream delivers records to an audit destination.
//
// Send may be called from many goroutines at once and must not retain or
// modify the record after returning. Send errors are logged by the engine
// and never change a decision.
type Stream interface {
	Send(record *Record) error

	// Close flushes buffered records. The stream is unusable afterwards.
	Close()
}
