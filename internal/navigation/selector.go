package navigation

import (
	"fmt"
	"strconv"
	"strings"
)

// CommitPolicy decides when typed digits select a link on pages with ten
// or more links.
type CommitPolicy int

const (
	// CommitUnambiguous commits as soon as a single link number starts
	// with the typed digits, or when the maximum digit count is reached.
	CommitUnambiguous CommitPolicy = iota

	// CommitOnMaxDigits commits when the maximum digit count is reached,
	// or on Enter.
	CommitOnMaxDigits

	// CommitOnEnter commits only on Enter.
	CommitOnEnter
)

// String returns the configuration name of the policy.
func (p CommitPolicy) String() string {
	switch p {
	case CommitUnambiguous:
		return "unambiguous"
	case CommitOnMaxDigits:
		return "max-digits"
	case CommitOnEnter:
		return "enter"
	default:
		return "unknown"
	}
}

// ParseCommitPolicy parses a policy name as written in the configuration.
func ParseCommitPolicy(s string) (CommitPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unambiguous":
		return CommitUnambiguous, nil
	case "max-digits", "maxdigits":
		return CommitOnMaxDigits, nil
	case "enter":
		return CommitOnEnter, nil
	default:
		return 0, fmt.Errorf("unknown link commit policy %q", s)
	}
}

// LinkSelector turns typed digits into a link number for a page with a
// fixed number of links. On pages with fewer than ten links one digit
// selects at once; otherwise digits accumulate according to the policy.
type LinkSelector struct {
	count  int
	digits int
	policy CommitPolicy
	buf    string
}

// NewLinkSelector returns a selector for a page with count links.
func NewLinkSelector(count int, policy CommitPolicy) *LinkSelector {
	return &LinkSelector{
		count:  count,
		digits: len(strconv.Itoa(max(count, 1))),
		policy: policy,
	}
}

// Type adds a digit. It returns the selected link number with done set
// once the selection commits. A selection that cannot match any link
// fails with ErrInvalidLinkID and clears the buffer.
func (s *LinkSelector) Type(digit rune) (id int, done bool, err error) {
	if digit < '0' || digit > '9' {
		s.Reset()
		return 0, false, fmt.Errorf("%w: %q is not a digit", ErrInvalidLinkID, digit)
	}
	s.buf += string(digit)

	if s.buf[0] == '0' || len(s.buf) > s.digits {
		return s.fail()
	}
	if s.count < 10 {
		return s.commit()
	}

	switch s.policy {
	case CommitUnambiguous:
		switch n := s.matches(); {
		case n == 0:
			return s.fail()
		case n == 1, len(s.buf) == s.digits:
			return s.commit()
		}
	case CommitOnMaxDigits:
		if len(s.buf) == s.digits {
			return s.commit()
		}
	case CommitOnEnter:
	}
	return 0, false, nil
}

// Enter commits the typed digits.
func (s *LinkSelector) Enter() (int, error) {
	if s.buf == "" {
		return 0, fmt.Errorf("%w: nothing typed", ErrInvalidLinkID)
	}
	id, _, err := s.commit()
	return id, err
}

// Buffer returns the digits typed so far.
func (s *LinkSelector) Buffer() string {
	return s.buf
}

// Reset clears the typed digits.
func (s *LinkSelector) Reset() {
	s.buf = ""
}

// matches counts the link numbers that start with the buffer.
func (s *LinkSelector) matches() int {
	n := 0
	for id := 1; id <= s.count; id++ {
		if strings.HasPrefix(strconv.Itoa(id), s.buf) {
			n++
		}
	}
	return n
}

func (s *LinkSelector) commit() (int, bool, error) {
	typed := s.buf
	s.Reset()

	id, err := strconv.Atoi(typed)
	if err != nil || id < 1 || id > s.count {
		return 0, false, fmt.Errorf("%w: %s (page has %d links)", ErrInvalidLinkID, typed, s.count)
	}
	return id, true, nil
}

func (s *LinkSelector) fail() (int, bool, error) {
	typed := s.buf
	s.Reset()
	return 0, false, fmt.Errorf("%w: %s (page has %d links)", ErrInvalidLinkID, typed, s.count)
}
