package signaling

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/VitHongHG/LANstream/internal/session"
)

func TestCodec_RoundTrip(t *testing.T) {
	c := Codec{}

	for _, kind := range []session.DescriptionKind{session.DescriptionOffer, session.DescriptionAnswer} {
		in := session.Description{Kind: kind, Payload: "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"}

		blob, err := c.Encode(in)
		if err != nil {
			t.Fatalf("encode %s: %v", kind, err)
		}
		if strings.ContainsAny(blob, "\r\n{}\" ") {
			t.Fatalf("blob %q is not a single opaque token", blob)
		}

		out, err := c.Decode(blob)
		if err != nil {
			t.Fatalf("decode %s: %v", kind, err)
		}
		if out != in {
			t.Fatalf("round trip = %+v, want %+v", out, in)
		}
	}
}

func TestCodec_DecodeToleratesSurroundingWhitespace(t *testing.T) {
	c := Codec{}
	blob, err := c.Encode(session.Description{Kind: session.DescriptionOffer, Payload: "sdp"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := c.Decode("  " + blob + "\n")
	if err != nil {
		t.Fatalf("decode with whitespace: %v", err)
	}
	if out.Payload != "sdp" {
		t.Fatalf("payload = %q, want %q", out.Payload, "sdp")
	}
}

func TestCodec_DecodeRejectsMalformedInput(t *testing.T) {
	c := Codec{}

	encode := func(raw string) string {
		return base64.StdEncoding.EncodeToString([]byte(raw))
	}

	cases := map[string]struct {
		blob    string
		wantErr error
	}{
		"not base64":       {blob: "definitely not a blob!!", wantErr: ErrNotBase64},
		"not json":         {blob: encode("hello"), wantErr: nil},
		"unknown field":    {blob: encode(`{"version":1,"type":"offer","sdp":"x","extra":true}`), wantErr: nil},
		"trailing data":    {blob: encode(`{"version":1,"type":"offer","sdp":"x"}{}`), wantErr: nil},
		"bad version":      {blob: encode(`{"version":2,"type":"offer","sdp":"x"}`), wantErr: ErrUnsupportedVersion},
		"missing version":  {blob: encode(`{"type":"offer","sdp":"x"}`), wantErr: ErrUnsupportedVersion},
		"bad type":         {blob: encode(`{"version":1,"type":"rollback","sdp":"x"}`), wantErr: ErrInvalidType},
		"empty sdp":        {blob: encode(`{"version":1,"type":"offer","sdp":""}`), wantErr: ErrMissingSDP},
		"empty blob":       {blob: "", wantErr: nil},
		"plain sdp pasted": {blob: "v=0", wantErr: nil},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decode(tc.blob)
			if err == nil {
				t.Fatalf("decode %q succeeded, want error", tc.blob)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestCodec_EncodeRejectsInvalidDescription(t *testing.T) {
	c := Codec{}

	if _, err := c.Encode(session.Description{Kind: "rollback", Payload: "x"}); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("err = %v, want ErrInvalidType", err)
	}
	if _, err := c.Encode(session.Description{Kind: session.DescriptionOffer}); !errors.Is(err, ErrMissingSDP) {
		t.Fatalf("err = %v, want ErrMissingSDP", err)
	}
}
