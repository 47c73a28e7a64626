package atmodem_test

import (
	"testing"

	"i4.energy/across/modemd/at"
	"i4.energy/across/modemd/atmodem"
)

func TestUSSD(t *testing.T) {
	c, m := newModem(t, map[string]string{
		`AT+CUSD=1,"AA182C3602",15`: okReply(),
		"AT+CUSD=2":                 okReply(),
	})
	r := newReports()
	u := atmodem.NewUSSD(c, r, discard)
	defer u.Close()

	if err := u.Request(t.Context(), "*101#"); err != nil {
		t.Fatalf("request: %v", err)
	}

	m.SendData("\r\n+CUSD: 1,\"C8329BFD06\",15\r\n")
	resp := receive[atmodem.USSDResponse](t, r)
	if resp.Status != atmodem.USSDActionRequired || resp.Text != "Hello" {
		t.Errorf("unexpected response %+v", resp)
	}

	if err := u.Cancel(t.Context()); err != nil {
		t.Errorf("cancel: %v", err)
	}
}

func TestParseCUSD(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    atmodem.USSDResponse
		wantErr bool
	}{
		{
			name: "Packed GSM",
			line: `+CUSD: 0,"C8329BFD06",15`,
			want: atmodem.USSDResponse{Status: atmodem.USSDNotify, Text: "Hello"},
		},
		{
			name: "UCS2",
			line: `+CUSD: 2,"00480069",72`,
			want: atmodem.USSDResponse{Status: atmodem.USSDTerminated, Text: "Hi"},
		},
		{
			name: "Modem decoded text",
			line: `+CUSD: 0,"Balance: 5 EUR",15`,
			want: atmodem.USSDResponse{Status: atmodem.USSDNotify, Text: "Balance: 5 EUR"},
		},
		{
			name: "Status only",
			line: "+CUSD: 4",
			want: atmodem.USSDResponse{Status: atmodem.USSDNotSupported},
		},
		{
			name:    "Missing status",
			line:    "+CUSD: ",
			wantErr: true,
		},
		{
			name:    "Bad UCS2",
			line:    `+CUSD: 0,"00Z8",72`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := atmodem.ParseCUSD(&at.Result{Lines: []string{tt.line}})
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected an error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
