package mpesa

import (
	"errors"
	"regexp"
	"strings"
)

var msisdn = regexp.MustCompile(`^254\d{9}$`)

// IsMSISDN reports whether phone is already in 254XXXXXXXXX form.
func IsMSISDN(phone string) bool { return msisdn.MatchString(phone) }

// NormalizePhone converts 07XXXXXXXX, 01XXXXXXXX, 7XXXXXXXX and +254... into
// 254XXXXXXXXX.
func NormalizePhone(phone string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	p = strings.TrimPrefix(p, "+")
	switch {
	case strings.HasPrefix(p, "254"):
	case strings.HasPrefix(p, "0") && len(p) == 10:
		p = "254" + p[1:]
	case len(p) == 9 && (p[0] == '7' || p[0] == '1'):
		p = "254" + p
	}
	if !IsMSISDN(p) {
		return "", errors.New("invalid phone number")
	}
	return p, nil
}
