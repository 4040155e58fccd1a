// Package redact replaces secrets in arbitrary text with a fixed token
// before the text is allowed to leave the core via logs, traces, or audit
// records.
package redact

import (
	"math"
	"regexp"
	"strings"
)

// Token replaces every matched secret.
const Token = "[REDACTED]"

type pattern struct {
	name string
	re   *regexp.Regexp
}

// patterns is the ordered list of known secret shapes, covering labeled
// credentials, provider-prefixed keys, and token formats seen in real
// agent output.
var patterns = []pattern{
	{"api_key", regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']?[a-z0-9]{20,}["']?`)},
	{"x_api_key", regexp.MustCompile(`(?i)(x-api-key|x_api_key)\s*[:=]\s*["']?[a-z0-9_-]{20,}["']?`)},
	{"aws_access_key_id", regexp.MustCompile(`(?i)AKIA[0-9A-Z]{16}`)},
	{"aws_secret_key", regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?[a-z0-9/+]{40}["']?`)},
	{"azure_account_key", regexp.MustCompile(`(?i)(accountkey|account[_-]?key)\s*[:=]\s*["']?[a-z0-9/+]{40,}["']?`)},
	{"gcp_api_key", regexp.MustCompile(`(?i)(gcp|google|gcloud)[_-]?(api[_-]?key|key)\s*[:=]\s*["']?[a-z0-9_-]{20,}["']?`)},
	{"db_password", regexp.MustCompile(`(?i)(db[_-]?|database[_-]?|postgres[_-]?|mysql[_-]?)?pass(word)?\s*[:=]\s*["'][^"'\s]{6,}["']`)},
	{"conn_string_password", regexp.MustCompile(`(?i)(connection[_-]?string|conn[_-]?string)\s*[:=]\s*["'][^"']*(password|pwd)=[^;& ]+[^"']*["']`)},
	{"private_key_block", regexp.MustCompile(`(?i)-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE\s+KEY-----[\s\S]*?-----END\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE\s+KEY-----`)},
	{"ssh_private_key", regexp.MustCompile(`(?i)(ssh[_-]?private[_-]?key|private[_-]?key)\s*[:=]\s*["'][a-z0-9/+\n]{100,}["']`)},
	{"generic_secret", regexp.MustCompile(`(?i)(secret|token|private[_-]?key|auth[_-]?token)\s*[:=]\s*["']?[a-z0-9_-]{20,}["']?`)},
	{"oauth_token", regexp.MustCompile(`(?i)(oauth[_-]?token|oauthtoken)\s*[:=]\s*["']?[a-z0-9_-]{20,}["']?`)},
	{"jwt", regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)},
	{"slack_token", regexp.MustCompile(`xox[baprs]-[0-9]{12}-[0-9]{12}-[0-9]{12}-[a-z0-9]{32}`)},
	{"github_token", regexp.MustCompile(`(?i)(ghp|gho|ghu|ghs|ghr)_[a-zA-Z0-9]{20,}`)},
	{"stripe_live_secret", regexp.MustCompile(`sk_live_[0-9a-zA-Z]{24}`)},
	{"stripe_live_public", regexp.MustCompile(`pk_live_[0-9a-zA-Z]{24}`)},
	{"bearer_token", regexp.MustCompile(`(?i)bearer\s+[a-z0-9_.~+/-]{20,}=*`)},
	{"anthropic_key", regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`)},
	{"openai_key", regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`)},
	{"slack_webhook", regexp.MustCompile(`https://hooks\.slack\.com/services/[A-Za-z0-9/]+`)},
	{"sendgrid_key", regexp.MustCompile(`SG\.[a-zA-Z0-9_-]{22}\.[a-zA-Z0-9_-]{43}`)},
	{"secret_in_url", regexp.MustCompile(`(?i)[?&](key|api[_-]?key|token|auth)=[a-z0-9_-]{20,}`)},
}

// entropyToken matches bare high-entropy candidates: long runs of mixed
// alphanumerics/symbols with no surrounding keyword, the shape of a raw
// API-key-like secret pasted into terminal output.
var entropyToken = regexp.MustCompile(`[A-Za-z0-9_\-/+]{24,}={0,2}`)

const entropyThreshold = 3.8

// Redact returns text with every recognized secret replaced by Token.
// Redact is idempotent: Redact(Redact(x)) == Redact(x), since Token itself
// never matches any of the patterns below.
func Redact(text string) string {
	out := text
	for _, p := range patterns {
		out = p.re.ReplaceAllString(out, Token)
	}
	out = redactHighEntropyTokens(out)
	return out
}

// ContainsSecrets reports whether text contains anything Redact would
// replace.
func ContainsSecrets(text string) bool {
	for _, p := range patterns {
		if p.re.MatchString(text) {
			return true
		}
	}
	return hasHighEntropyToken(text)
}

func redactHighEntropyTokens(text string) string {
	return entropyToken.ReplaceAllStringFunc(text, func(tok string) string {
		if looksLikeSecretToken(tok) {
			return Token
		}
		return tok
	})
}

func hasHighEntropyToken(text string) bool {
	for _, tok := range entropyToken.FindAllString(text, -1) {
		if looksLikeSecretToken(tok) {
			return true
		}
	}
	return false
}

// looksLikeSecretToken filters entropy candidates down to ones that plausibly
// look like a pasted credential rather than e.g. a long hex hash or base64
// blob of structured data.
func looksLikeSecretToken(tok string) bool {
	if tok == Token || strings.Contains(tok, Token) {
		return false
	}
	if len(tok) < 24 {
		return false
	}
	if isHexOnly(tok) {
		return false
	}
	if !hasMixedCharacterClasses(tok) {
		return false
	}
	return shannonEntropy(tok) >= entropyThreshold
}

func isHexOnly(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func hasMixedCharacterClasses(s string) bool {
	var hasLower, hasUpper, hasDigit bool
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	types := 0
	for _, b := range []bool{hasLower, hasUpper, hasDigit} {
		if b {
			types++
		}
	}
	return types >= 2
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[rune]int, len(s))
	for _, r := range s {
		freq[r]++
	}
	entropy := 0.0
	n := float64(len(s))
	for _, count := range freq {
		p := float64(count) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
