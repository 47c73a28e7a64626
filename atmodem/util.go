package atmodem

import (
	"cmp"
	"slices"
	"strconv"

	"i4.energy/across/modemd/at"
)

// RegStatus is the <stat> of +CREG.
type RegStatus int

const (
	RegNotRegistered RegStatus = iota
	RegHome
	RegSearching
	RegDenied
	RegUnknown
	RegRoaming
)

var regStatusNames = [...]string{"not registered", "registered", "searching", "denied", "unknown", "roaming"}

func (s RegStatus) String() string {
	if s >= 0 && int(s) < len(regStatusNames) {
		return regStatusNames[s]
	}
	return "status " + strconv.Itoa(int(s))
}

// Registered reports whether the modem is attached to a home or roaming
// network.
func (s RegStatus) Registered() bool {
	return s == RegHome || s == RegRoaming
}

// Registration is a parsed +CREG report. LAC, CI and Tech are -1 when the
// modem did not report them.
type Registration struct {
	Status RegStatus `json:"status"`
	LAC    int       `json:"lac"`
	CI     int       `json:"ci"`
	Tech   int       `json:"tech"`
}

// ParseReg parses the answer to a registration query such as AT+CREG?.
// Unsolicited reports that slip in before the answer, recognisable by their
// missing <n> field, are skipped.
func ParseReg(r *at.Result, prefix string, unquotedLACCI bool) (mode int, reg Registration, ok bool) {
	iter := at.NewResultIter(r)

	for iter.Next(prefix) {
		m, _ := iter.NextNumber()
		s, ok := iter.NextNumber()
		if !ok {
			continue
		}
		return m, parseLocation(iter, RegStatus(s), unquotedLACCI), true
	}

	return 0, Registration{}, false
}

// ParseRegNotify parses an unsolicited registration report.
func ParseRegNotify(r *at.Result, prefix string, unquotedLACCI bool) (Registration, bool) {
	iter := at.NewResultIter(r)
	if !iter.Next(prefix) {
		return Registration{}, false
	}

	s, ok := iter.NextNumber()
	if !ok {
		return Registration{}, false
	}
	return parseLocation(iter, RegStatus(s), unquotedLACCI), true
}

func parseLocation(iter *at.ResultIter, s RegStatus, unquoted bool) Registration {
	reg := Registration{Status: s, LAC: -1, CI: -1, Tech: -1}

	// Some firmware reports bogus lac/ci when unregistered.
	if !s.Registered() {
		return reg
	}

	next := iter.NextString
	if unquoted {
		next = iter.NextUnquotedString
	}

	lac, ok := next()
	if !ok {
		return reg
	}
	ci, ok := next()
	if !ok {
		return reg
	}
	reg.LAC, reg.CI = parseHex(lac), parseHex(ci)

	if t, ok := iter.NextNumber(); ok {
		reg.Tech = t
	}
	return reg
}

func parseHex(s string) int {
	v, err := strconv.ParseInt(s, 16, 64)
	if err != nil {
		return -1
	}
	return int(v)
}

// Call is one entry of a +CLCC listing.
type Call struct {
	ID         int
	Direction  int
	Status     int
	Type       int
	Multiparty bool
	Number     string
	NumberType int
}

// ParseCLCC parses the current call list, sorted by call id. Malformed
// entries are skipped.
func ParseCLCC(r *at.Result) []Call {
	iter := at.NewResultIter(r)

	var calls []Call
	for iter.Next("+CLCC:") {
		var (
			c     Call
			ok    bool
			mpty  int
			parts = []*int{&c.ID, &c.Direction, &c.Status, &c.Type, &mpty}
		)
		for _, p := range parts {
			if *p, ok = iter.NextNumber(); !ok {
				break
			}
		}
		if !ok {
			continue
		}

		c.Multiparty = mpty != 0
		c.NumberType = 129
		if number, ok := iter.NextString(); ok {
			c.Number = number
			if t, ok := iter.NextNumber(); ok {
				c.NumberType = t
			}
		}
		calls = append(calls, c)
	}

	slices.SortFunc(calls, func(a, b Call) int { return cmp.Compare(a.ID, b.ID) })
	return calls
}

// SMSStore is a message storage area.
type SMSStore string

const (
	StoreME SMSStore = "ME"
	StoreSM SMSStore = "SM"
	StoreSR SMSStore = "SR"
	StoreBM SMSStore = "BM"
	StoreMT SMSStore = "MT"
)

// ParseSMSIndex parses a stored message indication such as
// +CMTI: "SM",3.
func ParseSMSIndex(r *at.Result, prefix string) (SMSStore, int, bool) {
	iter := at.NewResultIter(r)
	if !iter.Next(prefix) {
		return "", 0, false
	}

	store, ok := iter.NextString()
	if !ok {
		return "", 0, false
	}
	switch s := SMSStore(store); s {
	case StoreME, StoreSM, StoreSR, StoreBM:
	default:
		return "", 0, false
	}

	index, ok := iter.NextNumber()
	if !ok {
		return "", 0, false
	}
	return SMSStore(store), index, true
}
