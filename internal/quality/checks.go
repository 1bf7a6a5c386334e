package quality

import (
	"net/url"
	"strings"
)

func (c *compiledRules) isPlaceholderName(name string) bool {
	name = collapseSpace(name)
	for _, re := range c.names {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func (c *compiledRules) placeholderToken(text string) (string, bool) {
	for _, re := range c.tokens {
		if m := re.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}

func (c *compiledRules) isGenericPlace(name string) bool {
	name = collapseSpace(name)
	for _, re := range c.genericPlaces {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func (c *compiledRules) isPlaceholderDomain(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, d := range c.emailDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func (c *compiledRules) hasCountySuffix(state, county string) bool {
	lower := strings.ToLower(strings.TrimSpace(county))
	for _, suffix := range c.countySuffixes(state) {
		s := strings.ToLower(suffix)
		if !strings.HasSuffix(lower, s) {
			continue
		}
		// " County" needs a name in front of it; "Carson City" is a whole name.
		if strings.HasPrefix(s, " ") && len(lower) <= len(s) {
			continue
		}
		return true
	}
	return false
}

// checkPhone validates a North American number.
func (c *compiledRules) checkPhone(col *collector, field, phone string) {
	digits := onlyDigits(phone)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		col.reject(field, RuleMalformedValue, phone)
		return
	}
	if repeatedDigit(digits) {
		col.reject(field, RulePlaceholderPhone, phone)
		return
	}
	for _, re := range c.phones {
		if re.MatchString(digits) {
			col.reject(field, RulePlaceholderPhone, phone)
			return
		}
	}
}

func (c *compiledRules) checkEmail(col *collector, field, email string) {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		col.reject(field, RuleMalformedValue, email)
		return
	}
	if c.isPlaceholderDomain(email[at+1:]) {
		col.reject(field, RulePlaceholderEmail, email)
	}
}

func (c *compiledRules) checkWebsite(col *collector, field, website string) {
	raw := website
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		col.reject(field, RuleMalformedValue, website)
		return
	}
	if c.isPlaceholderDomain(u.Hostname()) {
		col.reject(field, RulePlaceholderWebsite, website)
	}
}

func onlyDigits(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func repeatedDigit(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return s != ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
