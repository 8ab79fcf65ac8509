// Package feed holds the static population of RTP feeds and their lifecycle state.
package feed

import (
	"fmt"
	"strconv"
)

// UnknownSource is the camera address of a feed whose sender has not been detected.
const UnknownSource = "unknown"

// Default generation parameters.
const (
	DefaultCount       = 1000
	DefaultStartPort   = 5001
	DefaultIDPrefix    = "VT"
	DefaultPayloadType = 100
	DefaultCodec       = "h264"
)

// Definition describes one feed slot. MID and Port are fixed for the process
// lifetime; CameraIP and SenderPort change only on detection.
type Definition struct {
	MID         string
	Port        int
	Label       string
	PayloadType int
	Codec       string
	CameraIP    string
	SenderPort  *int
}

// Source is a detected sending peer.
type Source struct {
	IP   string
	Port int
}

// String returns ip:port.
func (s Source) String() string {
	return fmt.Sprintf("%s:%d", s.IP, s.Port)
}

// HasSource reports whether a sender address is known for the feed.
func (d *Definition) HasSource() bool {
	return d.CameraIP != "" && d.CameraIP != UnknownSource
}

// GenerateOptions controls population generation. Zero values take the defaults.
type GenerateOptions struct {
	Count       int
	StartPort   int
	IDPrefix    string
	PayloadType int
	Codec       string
}

func (o GenerateOptions) withDefaults() GenerateOptions {
	if o.Count == 0 {
		o.Count = DefaultCount
	}
	if o.StartPort == 0 {
		o.StartPort = DefaultStartPort
	}
	if o.IDPrefix == "" {
		o.IDPrefix = DefaultIDPrefix
	}
	if o.PayloadType == 0 {
		o.PayloadType = DefaultPayloadType
	}
	if o.Codec == "" {
		o.Codec = DefaultCodec
	}
	return o
}

// Generate builds the feed population: feed i (1-based) gets id <prefix>%03d,
// port startport+i-1 and the port number as its label.
func Generate(opts GenerateOptions) []Definition {
	opts = opts.withDefaults()

	defs := make([]Definition, 0, opts.Count)
	for i := 1; i <= opts.Count; i++ {
		port := opts.StartPort + i - 1
		defs = append(defs, Definition{
			MID:         fmt.Sprintf("%s%03d", opts.IDPrefix, i),
			Port:        port,
			Label:       strconv.Itoa(port),
			PayloadType: opts.PayloadType,
			Codec:       opts.Codec,
			CameraIP:    UnknownSource,
		})
	}
	return defs
}
