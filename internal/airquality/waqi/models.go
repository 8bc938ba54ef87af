package waqi

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

const statusOK = "ok"

// API response types (from the WAQI geo feed).

type feedResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type feedData struct {
	AQI  number              `json:"aqi"`
	City cityData            `json:"city"`
	Time timeData            `json:"time"`
	IAQI map[string]iaqiData `json:"iaqi"`
}

type cityData struct {
	Name string    `json:"name"`
	Geo  []float64 `json:"geo"`
}

type timeData struct {
	S string `json:"s"`
}

type iaqiData struct {
	V number `json:"v"`
}

// number accepts a JSON number or a string. Non-numeric strings such as "-",
// and non-finite spellings like "NaN" or "Inf", decode without error and
// report no value.
type number struct {
	v  float64
	ok bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = number{}
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*n = number{}
			return nil
		}
		*n = finite(f)
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = finite(f)
	return nil
}

func finite(f float64) number {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return number{}
	}
	return number{v: f, ok: true}
}

func (n number) value() *float64 {
	if !n.ok {
		return nil
	}
	v := n.v
	return &v
}
