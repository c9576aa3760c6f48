// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package statecodec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// decodeJSON parses src the same way Unpack does, so that values compare
// equal after a round trip.
func decodeJSON(t *testing.T, src string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(src))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("invalid test JSON %q: %s", src, err)
	}
	return v
}

func TestPackUnpack_roundTrip(t *testing.T) {
	tests := map[string]string{
		"null":    `null`,
		"string":  `"foo"`,
		"int":     `42`,
		"big int": `18446744073709551615`,
		"float":   `1.5`,
		"bool":    `true`,
		"list":    `[1, 2, 3]`,
		"object":  `{"foo": "bar"}`,
		"nested":  `{"version": 4, "serial": 17, "resources": [{"name": "a", "instances": [{"attributes": {"id": "x", "tags": null}}]}], "outputs": {}}`,
		"unicode": `{"greeting": "hallå 世界"}`,
		"empty":   `{}`,
	}

	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			want := decodeJSON(t, src)

			packed, err := Pack(want)
			if err != nil {
				t.Fatalf("unexpected error packing: %s", err)
			}
			got, err := Unpack(packed)
			if err != nil {
				t.Fatalf("unexpected error unpacking: %s", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("wrong result after round trip\n%s", diff)
			}
		})
	}
}

func TestPack_versionPrefix(t *testing.T) {
	packed, err := Pack(map[string]any{"foo": "bar"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(packed, FormatVersion+":") {
		t.Fatalf("packed state %q does not start with %q", packed, FormatVersion+":")
	}
	if strings.Count(packed, ":") != 1 {
		t.Fatalf("packed state %q must contain exactly one separator", packed)
	}
}

func TestPack_deterministic(t *testing.T) {
	v := map[string]any{"b": []any{1, 2}, "a": "x", "c": map[string]any{"z": true, "y": nil}}
	first, err := Pack(v)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Pack(v)
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("Pack is not deterministic:\n%s\n%s", first, again)
		}
	}
}

func TestUnpack_missingVersion(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte(`{'foo': 'bar'}`))

	_, err := Unpack(payload)
	if !errors.Is(err, ErrMissingVersion) {
		t.Fatalf("wrong error\ngot:  %v\nwant: %v", err, ErrMissingVersion)
	}
	if !IsFormatError(err) {
		t.Fatalf("%v should be a format error", err)
	}
}

func TestUnpack_emptyEnvelope(t *testing.T) {
	_, err := Unpack("")
	if !errors.Is(err, ErrMissingVersion) {
		t.Fatalf("wrong error\ngot:  %v\nwant: %v", err, ErrMissingVersion)
	}
}

func TestUnpack_unsupportedVersion(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte(`{'foo': 'bar'}`))

	_, err := Unpack("v9999999:" + payload)
	var versionErr *UnsupportedVersionError
	if !errors.As(err, &versionErr) {
		t.Fatalf("wrong error type %T: %v", err, err)
	}
	if got, want := versionErr.Version, "v9999999"; got != want {
		t.Fatalf("wrong version reported\ngot:  %s\nwant: %s", got, want)
	}
	if !strings.Contains(err.Error(), "v9999999") {
		t.Fatalf("error message %q does not mention the version", err)
	}
}

func TestUnpack_versionIsComparedExactly(t *testing.T) {
	packed, err := Pack("foo")
	if err != nil {
		t.Fatal(err)
	}
	payload := strings.TrimPrefix(packed, FormatVersion+":")

	for _, version := range []string{"V0", " v0", "v0 ", "v00", ""} {
		_, err := Unpack(version + ":" + payload)
		var versionErr *UnsupportedVersionError
		if !errors.As(err, &versionErr) {
			t.Errorf("version %q: wrong error %v", version, err)
		}
	}
}

func TestUnpack_malformedPayload(t *testing.T) {
	var notGzip bytes.Buffer
	notGzip.WriteString("plain text")

	tests := map[string]string{
		"base64": "v0:%%%",
		"gzip":   "v0:" + base64.StdEncoding.EncodeToString(notGzip.Bytes()),
	}
	for name, envelope := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Unpack(envelope)
			var payloadErr *PayloadError
			if !errors.As(err, &payloadErr) {
				t.Fatalf("wrong error type %T: %v", err, err)
			}
			if payloadErr.Step != name {
				t.Fatalf("wrong step\ngot:  %s\nwant: %s", payloadErr.Step, name)
			}
			if !IsFormatError(err) {
				t.Fatalf("%v should be a format error", err)
			}
		})
	}
}

func TestIsFormatError_otherErrors(t *testing.T) {
	if IsFormatError(errors.New("boom")) {
		t.Fatal("unrelated error reported as format error")
	}
	if IsFormatError(nil) {
		t.Fatal("nil reported as format error")
	}
}
