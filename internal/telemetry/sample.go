// Package telemetry parses incoming sensor payloads, including decryption of
// encrypted device traffic, into the fixed sample shape the rest of the
// pipeline works with.
package telemetry

import "strconv"

// Sample is one telemetry reading from the field. Three flow triplets plus
// main, three pressure triplets plus main, two relay states, three
// solenoid/valve states and one solenoid-active flag.
type Sample struct {
	FMain          float64 `json:"f_main"`
	F1             float64 `json:"f_1"`
	F2             float64 `json:"f_2"`
	F3             float64 `json:"f_3"`
	PMain          float64 `json:"p_main"`
	PDma1          float64 `json:"p_dma1"`
	PDma2          float64 `json:"p_dma2"`
	PDma3          float64 `json:"p_dma3"`
	PumpOn         int     `json:"pump_on"`
	CompOn         int     `json:"comp_on"`
	S1             int     `json:"s1"`
	S2             int     `json:"s2"`
	S3             int     `json:"s3"`
	SolenoidActive int     `json:"solenoid_active"`

	// Ground-truth declarations carried by simulation traffic. When
	// SimulatedLeak is 1 the inference step is skipped entirely.
	SimulatedLeak     *int `json:"simulated_leak,omitempty"`
	SimulatedLocation *int `json:"simulated_location,omitempty"`
}

// HasSimulatedLeak reports whether the sample declares a simulated leak.
func (s *Sample) HasSimulatedLeak() bool {
	return s.SimulatedLeak != nil && *s.SimulatedLeak == 1
}

// SimulatedLocationLabel returns the declared leak location, 0 when absent.
func (s *Sample) SimulatedLocationLabel() int {
	if s.SimulatedLocation == nil {
		return 0
	}
	return *s.SimulatedLocation
}

// SampleFromMap builds a Sample from a generic decoded JSON object. Missing
// numeric fields default to 0; a sparse sample is never an error here
// (required-field validation happens in the payload parser).
func SampleFromMap(m map[string]any) *Sample {
	s := &Sample{
		FMain:          floatField(m, "f_main"),
		F1:             floatField(m, "f_1"),
		F2:             floatField(m, "f_2"),
		F3:             floatField(m, "f_3"),
		PMain:          floatField(m, "p_main"),
		PDma1:          floatField(m, "p_dma1"),
		PDma2:          floatField(m, "p_dma2"),
		PDma3:          floatField(m, "p_dma3"),
		PumpOn:         intField(m, "pump_on"),
		CompOn:         intField(m, "comp_on"),
		S1:             intField(m, "s1"),
		S2:             intField(m, "s2"),
		S3:             intField(m, "s3"),
		SolenoidActive: intField(m, "solenoid_active"),
	}
	if _, ok := m["simulated_leak"]; ok {
		v := intField(m, "simulated_leak")
		s.SimulatedLeak = &v
	}
	if _, ok := m["simulated_location"]; ok {
		v := intField(m, "simulated_location")
		s.SimulatedLocation = &v
	}
	return s
}

// floatField coerces a JSON value to float64, defaulting to 0. Devices in the
// field send numbers, numeric strings and booleans interchangeably.
func floatField(m map[string]any, key string) float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func intField(m map[string]any, key string) int {
	return int(floatField(m, key))
}
