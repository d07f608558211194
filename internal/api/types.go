package api

import (
	"github.com/samcharles93/mixq/internal/cpuinfo"
	"github.com/samcharles93/mixq/pkg/qlf"
)

// ConvolveRequest runs one stored layer on a packed input.
type ConvolveRequest struct {
	Layer string `json:"layer"`
	// Input is the packed activation tensor, base64 encoded on the wire.
	Input []byte `json:"input"`
	// Raw returns the int32 accumulators instead of the packed output.
	Raw bool `json:"raw,omitempty"`
}

type ConvolveResponse struct {
	ID           string  `json:"id"`
	Object       string  `json:"object"`
	CreatedAt    int64   `json:"created_at"`
	Layer        string  `json:"layer"`
	Variant      string  `json:"variant"`
	Status       string  `json:"status"`
	OutDim       int     `json:"out_dim"`
	OutCh        int     `json:"out_ch"`
	Output       []byte  `json:"output,omitempty"`
	Accumulators []int32 `json:"accumulators,omitempty"`
}

type LayerObject struct {
	ID          string        `json:"id"`
	Object      string        `json:"object"`
	Variant     string        `json:"variant"`
	InputBytes  int           `json:"input_bytes"`
	OutputBytes int           `json:"output_bytes"`
	OutDim      int           `json:"out_dim"`
	Info        qlf.LayerInfo `json:"info"`
}

type LayerList struct {
	Object string        `json:"object"`
	Data   []LayerObject `json:"data"`
}

type HealthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Layers  int            `json:"layers"`
	CPU     cpuinfo.Report `json:"cpu"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

type ErrorResponse struct {
	Error  ResponseError `json:"error"`
	Status string        `json:"status,omitempty"`
}

func layerObject(l *qlf.Layer) LayerObject {
	p := l.Params
	return LayerObject{
		ID:          l.Name,
		Object:      "layer",
		Variant:     p.Variant.String(),
		InputBytes:  p.InputLen(),
		OutputBytes: p.OutputLen(),
		OutDim:      p.Geometry.OutDim(),
		Info:        l.Info(),
	}
}
