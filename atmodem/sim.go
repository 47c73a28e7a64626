package atmodem

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"i4.energy/across/modemd/at"
	"i4.energy/across/modemd/chat"
)

// PINState is the password the SIM is waiting for, as reported by +CPIN?.
type PINState string

const (
	PINReady       PINState = "READY"
	PINSimPIN      PINState = "SIM PIN"
	PINSimPUK      PINState = "SIM PUK"
	PINPhSimPIN    PINState = "PH-SIM PIN"
	PINPhFSimPIN   PINState = "PH-FSIM PIN"
	PINPhFSimPUK   PINState = "PH-FSIM PUK"
	PINSimPIN2     PINState = "SIM PIN2"
	PINSimPUK2     PINState = "SIM PUK2"
	PINPhNetPIN    PINState = "PH-NET PIN"
	PINPhNetPUK    PINState = "PH-NET PUK"
	PINPhNetSubPIN PINState = "PH-NETSUB PIN"
	PINPhNetSubPUK PINState = "PH-NETSUB PUK"
	PINPhSPPIN     PINState = "PH-SP PIN"
	PINPhSPPUK     PINState = "PH-SP PUK"
	PINPhCorpPIN   PINState = "PH-CORP PIN"
	PINPhCorpPUK   PINState = "PH-CORP PUK"
)

var pinStates = []PINState{
	PINReady, PINSimPIN, PINSimPUK, PINPhSimPIN, PINPhFSimPIN, PINPhFSimPUK,
	PINSimPIN2, PINSimPUK2, PINPhNetPIN, PINPhNetPUK, PINPhNetSubPIN,
	PINPhNetSubPUK, PINPhSPPIN, PINPhSPPUK, PINPhCorpPIN, PINPhCorpPUK,
}

// Facility is a +CLCK lock facility.
type Facility string

const (
	FacilitySIM     Facility = "SC"
	FacilitySIM2    Facility = "P2"
	FacilityPhone   Facility = "PS"
	FacilityNetwork Facility = "PN"
)

// SIM file structures.
const (
	FileTransparent = 0
	FileLinearFixed = 1
	FileCyclic      = 3
)

// FileInfo describes an elementary file.
type FileInfo struct {
	Length       int
	Structure    int
	RecordLength int
}

// SIM is the 27.007 SIM driver.
type SIM struct {
	chat   *chat.Chat
	logger *slog.Logger
}

// NewSIM returns a SIM driver on its own handle of c.
func NewSIM(c *chat.Chat, logger *slog.Logger) *SIM {
	return &SIM{
		chat:   c.Clone(),
		logger: logger.With("component", "sim"),
	}
}

// PINState returns the password the SIM is waiting for.
func (s *SIM) PINState(ctx context.Context) (PINState, error) {
	r, err := s.chat.Exec(ctx, "AT+CPIN?", []string{"+CPIN:"})
	if err != nil {
		return "", err
	}

	var name string
	if final := r.FinalResponse(); strings.HasPrefix(final, "+CPIN:") {
		name = strings.TrimSpace(final[len("+CPIN:"):])
	} else {
		iter := at.NewResultIter(r)
		if !iter.Next("+CPIN:") {
			return "", fmt.Errorf("PIN state: %w", ErrUnexpectedResponse)
		}
		name, _ = iter.NextUnquotedString()
	}

	for _, state := range pinStates {
		if string(state) == name {
			return state, nil
		}
	}
	return "", fmt.Errorf("PIN state %q: %w", name, ErrUnexpectedResponse)
}

// EnterPIN sends the PIN the SIM is waiting for.
func (s *SIM) EnterPIN(ctx context.Context, pin string) error {
	if !validPIN(pin) {
		return ErrBadPIN
	}
	_, err := s.chat.Exec(ctx, fmt.Sprintf(`AT+CPIN="%s"`, pin), chat.NoPrefix)
	return err
}

// ResetPIN unblocks the SIM with puk and sets a new pin.
func (s *SIM) ResetPIN(ctx context.Context, puk, pin string) error {
	if !validPIN(puk) || !validPIN(pin) {
		return ErrBadPIN
	}
	_, err := s.chat.Exec(ctx, fmt.Sprintf(`AT+CPIN="%s","%s"`, puk, pin), chat.NoPrefix)
	return err
}

// SetLock enables or disables a lock facility.
func (s *SIM) SetLock(ctx context.Context, fac Facility, enable bool, pin string) error {
	if !validPIN(pin) {
		return ErrBadPIN
	}
	mode := 0
	if enable {
		mode = 1
	}
	_, err := s.chat.Exec(ctx, fmt.Sprintf(`AT+CLCK="%s",%d,"%s"`, fac, mode, pin), chat.NoPrefix)
	return err
}

// Locked reports whether a lock facility is enabled.
func (s *SIM) Locked(ctx context.Context, fac Facility) (bool, error) {
	r, err := s.chat.Exec(ctx, fmt.Sprintf(`AT+CLCK="%s",2`, fac), []string{"+CLCK:"})
	if err != nil {
		return false, err
	}
	iter := at.NewResultIter(r)
	if !iter.Next("+CLCK:") {
		return false, fmt.Errorf("lock status: %w", ErrUnexpectedResponse)
	}
	status, ok := iter.NextNumber()
	if !ok {
		return false, fmt.Errorf("lock status: %w", ErrUnexpectedResponse)
	}
	return status == 1, nil
}

// ChangePIN replaces the password of a lock facility.
func (s *SIM) ChangePIN(ctx context.Context, fac Facility, old, pin string) error {
	if !validPIN(old) || !validPIN(pin) {
		return ErrBadPIN
	}
	_, err := s.chat.Exec(ctx, fmt.Sprintf(`AT+CPWD="%s","%s","%s"`, fac, old, pin), chat.NoPrefix)
	return err
}

// IMSI returns the subscriber identity.
func (s *SIM) IMSI(ctx context.Context) (string, error) {
	r, err := s.chat.Exec(ctx, "AT+CIMI", nil)
	if err != nil {
		return "", err
	}

	for _, line := range r.Lines {
		line = strings.TrimSpace(line)
		if line != "" && strings.Trim(line, "0123456789") == "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("IMSI: %w", ErrUnexpectedResponse)
}

// FileInfo reads the size and structure of an elementary file.
func (s *SIM) FileInfo(ctx context.Context, fileID int) (FileInfo, error) {
	resp, err := s.crsm(ctx, fmt.Sprintf("AT+CRSM=192,%d", fileID), false)
	if err != nil {
		return FileInfo{}, err
	}
	return ParseFileInfo(resp)
}

// ReadBinary reads length bytes at offset from a transparent file.
func (s *SIM) ReadBinary(ctx context.Context, fileID, offset, length int) ([]byte, error) {
	return s.crsm(ctx, fmt.Sprintf("AT+CRSM=176,%d,%d,%d,%d", fileID, offset>>8, offset&0xff, length), true)
}

// ReadRecord reads record number rec of a linear fixed or cyclic file.
func (s *SIM) ReadRecord(ctx context.Context, fileID, rec, length int) ([]byte, error) {
	return s.crsm(ctx, fmt.Sprintf("AT+CRSM=178,%d,%d,4,%d", fileID, rec, length), true)
}

// UpdateBinary writes data at offset of a transparent file.
func (s *SIM) UpdateBinary(ctx context.Context, fileID, offset int, data []byte) error {
	cmd := fmt.Sprintf("AT+CRSM=214,%d,%d,%d,%d,%s", fileID, offset>>8, offset&0xff, len(data), at.EncodeHex(data))
	_, err := s.crsm(ctx, cmd, true)
	return err
}

// UpdateRecord writes record number rec of a linear fixed file.
func (s *SIM) UpdateRecord(ctx context.Context, fileID, rec int, data []byte) error {
	cmd := fmt.Sprintf("AT+CRSM=220,%d,%d,4,%d,%s", fileID, rec, len(data), at.EncodeHex(data))
	_, err := s.crsm(ctx, cmd, true)
	return err
}

// crsm runs a restricted SIM access and checks its status words. Reads and
// updates also accept 0x9f.
func (s *SIM) crsm(ctx context.Context, cmd string, access bool) ([]byte, error) {
	r, err := s.chat.Exec(ctx, cmd, []string{"+CRSM:"})
	if err != nil {
		return nil, err
	}

	iter := at.NewResultIter(r)
	if !iter.Next("+CRSM:") {
		return nil, fmt.Errorf("SIM access: %w", ErrUnexpectedResponse)
	}
	sw1, ok1 := iter.NextNumber()
	sw2, ok2 := iter.NextNumber()
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("SIM access status: %w", ErrUnexpectedResponse)
	}
	if err := checkStatusWords(sw1, sw2, access); err != nil {
		return nil, err
	}

	data, _ := iter.NextHexString()
	return data, nil
}

// Envelope passes a SIM toolkit envelope to the card and returns its
// answer without the status words.
func (s *SIM) Envelope(ctx context.Context, cmd []byte) ([]byte, error) {
	return s.csim(ctx, fmt.Sprintf("A0C20000%02X%sFF", len(cmd), at.EncodeHex(cmd)))
}

// TerminalResponse answers a proactive SIM toolkit command.
func (s *SIM) TerminalResponse(ctx context.Context, resp []byte) error {
	_, err := s.csim(ctx, fmt.Sprintf("A0140000%02X%s", len(resp), at.EncodeHex(resp)))
	return err
}

// csim sends a raw APDU. The answer ends with the status words.
func (s *SIM) csim(ctx context.Context, apdu string) ([]byte, error) {
	r, err := s.chat.Exec(ctx, fmt.Sprintf("AT+CSIM=%d,%s", len(apdu), apdu), []string{"+CSIM:"})
	if err != nil {
		return nil, err
	}

	iter := at.NewResultIter(r)
	if !iter.Next("+CSIM:") {
		return nil, fmt.Errorf("SIM command: %w", ErrUnexpectedResponse)
	}
	n, ok := iter.NextNumber()
	if !ok {
		return nil, fmt.Errorf("SIM command: %w", ErrUnexpectedResponse)
	}
	resp, ok := iter.NextHexString()
	if !ok || n != len(resp)*2 || len(resp) < 2 {
		return nil, fmt.Errorf("SIM command answer: %w", ErrUnexpectedResponse)
	}

	sw1, sw2 := int(resp[len(resp)-2]), int(resp[len(resp)-1])
	if (sw1 != 0x90 && sw1 != 0x91) || (sw1 == 0x90 && sw2 != 0) {
		return nil, &StatusError{SW1: sw1, SW2: sw2}
	}
	return resp[:len(resp)-2], nil
}

// StatusError is a SIM access that failed with status words sw1 and sw2.
type StatusError struct {
	SW1, SW2 int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("SIM access failed: sw1=%02x sw2=%02x", e.SW1, e.SW2)
}

func checkStatusWords(sw1, sw2 int, access bool) error {
	switch {
	case sw1 == 0x90 && sw2 != 0:
	case sw1 == 0x90, sw1 == 0x91, sw1 == 0x92:
		return nil
	case sw1 == 0x9f && access:
		return nil
	}
	return &StatusError{SW1: sw1, SW2: sw2}
}

// ParseFileInfo decodes a GET RESPONSE in either the 2G format of 51.011 or
// the 3G FCP template of 102.221.
func ParseFileInfo(resp []byte) (FileInfo, error) {
	if len(resp) > 0 && resp[0] == 0x62 {
		return parseFCP(resp)
	}

	if len(resp) < 14 || resp[6] != 0x04 {
		return FileInfo{}, fmt.Errorf("file info: %w", ErrUnexpectedResponse)
	}
	info := FileInfo{
		Length:    int(resp[2])<<8 | int(resp[3]),
		Structure: int(resp[13]),
	}
	if info.Structure != FileTransparent && len(resp) > 14 {
		info.RecordLength = int(resp[14])
	}
	return info, nil
}

func parseFCP(resp []byte) (FileInfo, error) {
	if len(resp) < 2 || int(resp[1])+2 > len(resp) {
		return FileInfo{}, fmt.Errorf("file control parameters: %w", ErrUnexpectedResponse)
	}

	var (
		info    FileInfo
		haveFD  bool
		tlvs    = resp[2 : 2+int(resp[1])]
		sizeSet bool
	)
	for len(tlvs) >= 2 {
		tag, n := tlvs[0], int(tlvs[1])
		if 2+n > len(tlvs) {
			break
		}
		value := tlvs[2 : 2+n]
		tlvs = tlvs[2+n:]

		switch tag {
		case 0x82:
			if n < 2 {
				continue
			}
			haveFD = true
			switch value[0] & 0x07 {
			case 1:
				info.Structure = FileTransparent
			case 2:
				info.Structure = FileLinearFixed
			case 6:
				info.Structure = FileCyclic
			}
			if n >= 4 {
				info.RecordLength = int(value[2])<<8 | int(value[3])
			}
		case 0x80:
			if n >= 2 {
				info.Length = int(value[0])<<8 | int(value[1])
				sizeSet = true
			}
		}
	}

	if !haveFD || !sizeSet {
		return FileInfo{}, fmt.Errorf("file control parameters: %w", ErrUnexpectedResponse)
	}
	return info, nil
}

func validPIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 8 {
		return false
	}
	return strings.Trim(pin, "0123456789") == ""
}
