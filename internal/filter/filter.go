package filter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"
)

const MaxFilters = 1024

var (
	ErrFull    = errors.New("ip filter list is full")
	ErrInvalid = errors.New("bad filter address")
)

// IPFilter matches an address octet by octet. A zero octet in the source
// string, or an omitted trailing octet, is a wildcard.
type IPFilter struct {
	Compare [4]byte
	Mask    [4]byte
}

func Parse(s string) (IPFilter, error) {
	var f IPFilter
	s = strings.TrimSpace(s)
	if s == "" {
		return f, fmt.Errorf("%w: empty", ErrInvalid)
	}
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return f, fmt.Errorf("%w: %s", ErrInvalid, s)
	}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return IPFilter{}, fmt.Errorf("%w: %s", ErrInvalid, s)
		}
		if n != 0 {
			f.Compare[i] = byte(n)
			f.Mask[i] = 0xff
		}
	}
	return f, nil
}

func (f IPFilter) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", f.Compare[0], f.Compare[1], f.Compare[2], f.Compare[3])
}

func (f IPFilter) Matches(ip [4]byte) bool {
	for i := range ip {
		if ip[i]&f.Mask[i] != f.Compare[i] {
			return false
		}
	}
	return true
}

// parseAddr accepts "a.b.c.d" and "a.b.c.d:port".
func parseAddr(s string) ([4]byte, bool) {
	s = strings.TrimSpace(s)
	addr, err := netip.ParseAddr(s)
	if err != nil {
		ap, err := netip.ParseAddrPort(s)
		if err != nil {
			return [4]byte{}, false
		}
		addr = ap.Addr()
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return [4]byte{}, false
	}
	return addr.As4(), true
}

// List is the ordered filter list. In ban mode matching addresses are
// blocked, otherwise only matching addresses get in.
type List struct {
	filters []IPFilter
	max     int
	ban     bool
}

func NewList(maxFilters int) *List {
	if maxFilters <= 0 || maxFilters > MaxFilters {
		maxFilters = MaxFilters
	}
	return &List{max: maxFilters, ban: true}
}

func (l *List) SetBan(ban bool) {
	l.ban = ban
}

func (l *List) Ban() bool {
	return l.ban
}

func (l *List) Len() int {
	return len(l.filters)
}

// Add reports false without error for a duplicate.
func (l *List) Add(s string) (bool, error) {
	f, err := Parse(s)
	if err != nil {
		return false, err
	}
	for _, existing := range l.filters {
		if existing == f {
			return false, nil
		}
	}
	if len(l.filters) >= l.max {
		return false, ErrFull
	}
	l.filters = append(l.filters, f)
	return true, nil
}

// Remove deletes the filter with the exact same compare and mask.
func (l *List) Remove(s string) bool {
	f, err := Parse(s)
	if err != nil {
		return false
	}
	for i, existing := range l.filters {
		if existing == f {
			l.filters = append(l.filters[:i], l.filters[i+1:]...)
			return true
		}
	}
	return false
}

func (l *List) Filters() []IPFilter {
	out := make([]IPFilter, len(l.filters))
	copy(out, l.filters)
	return out
}

func (l *List) Clear() {
	l.filters = nil
}

// Matches reports whether any filter covers ip. Unparseable addresses
// never match.
func (l *List) Matches(ip string) bool {
	addr, ok := parseAddr(ip)
	if !ok {
		return false
	}
	for _, f := range l.filters {
		if f.Matches(addr) {
			return true
		}
	}
	return false
}

func (l *List) ShouldBlock(ip string) bool {
	match := l.Matches(ip)
	if l.ban {
		return match
	}
	return !match
}

// Save writes the list as console commands that rebuild it when executed.
func (l *List) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	ban := 0
	if l.ban {
		ban = 1
	}
	fmt.Fprintf(bw, "set filterban %d\n", ban)
	for _, f := range l.filters {
		fmt.Fprintf(bw, "sv addip %s\n", f)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write ip filters: %w", err)
	}
	return nil
}
