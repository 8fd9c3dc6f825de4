//
//  Copyright © Manetu Inc. All rights reserved.
//

package accesslog

// NullFactory creates streams that drop every record.
type NullFactory struct{}

// NullStream discards records. Use it to turn auditing off.
type NullStream struct{}

// NewNullFactory returns a [NullFactory].
func NewNullFactory() Factory {
	return &NullFactory{}
}

// NewStream returns a [NullStream].
func (f *NullFactory) NewStream() (Stream, error) {
	return &NullStream{}, nil
}

// Send drops record.
func (s *NullStream) Send(*Record) error {
	return nil
}

// Close does nothing.
func (s *NullStream) Close() {}
