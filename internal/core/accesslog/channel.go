//
//  Copyright © Manetu Inc. All rights reserved.
//

package accesslog

import (
	"github.com/manetu/portalauthz/pkg/core/accesslog"
)

// ChannelFactory creates a [ChannelStream] on one channel.
type ChannelFactory struct {
	ch chan *accesslog.Record
}

// ChannelStream delivers records to a channel, letting tests observe what
// the engine audits.
type ChannelStream struct {
	ch chan *accesslog.Record
}

// NewChannelLogger returns a factory whose stream writes to ch.
func NewChannelLogger(ch chan *accesslog.Record) accesslog.Factory {
	return &ChannelFactory{ch: ch}
}

// NewStream returns the stream on the factory's channel.
func (f *ChannelFactory) NewStream() (accesslog.Stream, error) {
	return &ChannelStream{ch: f.ch}, nil
}

// Send blocks until the record is accepted by the channel.
func (s *ChannelStream) Send(r *accesslog.Record) error {
	s.ch <- r
	return nil
}

// Close closes the channel.
func (s *ChannelStream) Close() {
	if s.ch != nil {
		close(s.ch)
	}
}
