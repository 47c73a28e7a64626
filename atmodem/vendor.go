// Package atmodem holds the telephony drivers that speak 27.005 / 27.007 AT
// commands over a chat session, plus the response parsers and vendor quirks
// they share.
package atmodem

import (
	"fmt"
	"strings"
	"time"

	"i4.energy/across/modemd/at"
)

// Vendor identifies a modem family with known deviations from the standard.
type Vendor int

const (
	VendorGeneric Vendor = iota
	VendorCalypso
	VendorHuawei
	VendorNokia
	VendorNovatel
	VendorHTCG1
	VendorPhonesim
	VendorMBM
	VendorSierra
	VendorWavecom
)

var vendorNames = map[Vendor]string{
	VendorGeneric:  "generic",
	VendorCalypso:  "calypso",
	VendorHuawei:   "huawei",
	VendorNokia:    "nokia",
	VendorNovatel:  "novatel",
	VendorHTCG1:    "htcg1",
	VendorPhonesim: "phonesim",
	VendorMBM:      "mbm",
	VendorSierra:   "sierra",
	VendorWavecom:  "wavecom",
}

func (v Vendor) String() string {
	if name, ok := vendorNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Vendor(%d)", int(v))
}

// ParseVendor looks a vendor up by name, case insensitively. The empty name
// is the generic vendor.
func ParseVendor(name string) (Vendor, error) {
	if name == "" {
		return VendorGeneric, nil
	}
	for v, n := range vendorNames {
		if strings.EqualFold(n, name) {
			return v, nil
		}
	}
	return VendorGeneric, fmt.Errorf("unknown modem vendor %q", name)
}

// Wakeup describes a probe command for modems that doze off when idle.
type Wakeup struct {
	Command    string
	Inactivity time.Duration
	Interval   time.Duration
}

// Profile is everything the chat and the drivers need to know about a
// vendor.
type Profile struct {
	Syntax at.SyntaxKind
	// UnquotedLACCI is set for firmware that reports +CREG location and
	// cell ids without quotes.
	UnquotedLACCI bool
	// CNMIModes lists the +CNMI <mode> values in order of preference.
	CNMIModes string
	// ExtendedCSQ enables the proprietary %CSQ signal strength reports.
	ExtendedCSQ bool
	Terminators []at.Terminator
	Wakeup      *Wakeup
}

// Profile returns the quirks of v.
func (v Vendor) Profile() Profile {
	p := Profile{
		Syntax:    at.SyntaxGSMV1,
		CNMIModes: "2310",
	}

	switch v {
	case VendorCalypso:
		p.Syntax = at.SyntaxPermissive
		p.ExtendedCSQ = true
		p.Wakeup = &Wakeup{Command: "AT\r", Inactivity: 5 * time.Second, Interval: 500 * time.Millisecond}
	case VendorHuawei:
		p.Syntax = at.SyntaxPermissive
		p.UnquotedLACCI = true
		p.Terminators = []at.Terminator{{Text: "COMMAND NOT SUPPORT", Exact: true}}
	case VendorNokia:
		p.Syntax = at.SyntaxPermissive
	case VendorNovatel:
		p.UnquotedLACCI = true
	case VendorHTCG1:
		p.CNMIModes = "1"
	case VendorWavecom:
		// The PIN state arrives as the final result, without OK.
		p.Terminators = []at.Terminator{{Text: "+CPIN:", Success: true}}
	}

	return p
}
