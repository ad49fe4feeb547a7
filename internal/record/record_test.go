package record

import "testing"

func TestParseSensorCSVValid(t *testing.T) {
	r, err := ParseSensorCSV("kitchen,72F,50")
	if err != nil {
		t.Fatalf("ParseSensorCSV: %v", err)
	}
	if r.Device != "kitchen" || r.Temperature != "72" || r.Scale != "F" || r.Humidity != "50" {
		t.Fatalf("unexpected parse result: %+v", r)
	}
}

func TestParseSensorCSVLowercaseScale(t *testing.T) {
	r, err := ParseSensorCSV("den,21c,33")
	if err != nil {
		t.Fatalf("ParseSensorCSV: %v", err)
	}
	if r.Scale != "C" {
		t.Fatalf("expected upcased scale C, got %q", r.Scale)
	}
}

func TestParseSensorCSVBadArity(t *testing.T) {
	if _, err := ParseSensorCSV("kitchen,72F"); err == nil {
		t.Fatalf("expected error for wrong arity")
	}
}

func TestParseSensorCSVBadScale(t *testing.T) {
	if _, err := ParseSensorCSV("kitchen,72K,50"); err == nil {
		t.Fatalf("expected error for unrecognised scale")
	}
}

func TestParseSensorCSVBadHumidityRange(t *testing.T) {
	if _, err := ParseSensorCSV("kitchen,72F,150"); err == nil {
		t.Fatalf("expected error for out-of-range humidity")
	}
}

func TestParseSensorCSVNonNumericTemperature(t *testing.T) {
	if _, err := ParseSensorCSV("kitchen,hotF,50"); err == nil {
		t.Fatalf("expected error for non-numeric temperature")
	}
}

func TestMakeKeySanitizes(t *testing.T) {
	key := MakeKey("Cust 001", "Kitchen Sensor!")
	if key != "cust-001#kitchen-sensor-" {
		t.Fatalf("unexpected sanitized key: %q", key)
	}
}

func TestIsTombstone(t *testing.T) {
	if !IsTombstone(Tombstone) {
		t.Fatalf("expected the sentinel string to be a tombstone")
	}
	if IsTombstone(map[string]any{"v": 1}) {
		t.Fatalf("expected a regular value to not be a tombstone")
	}
}
