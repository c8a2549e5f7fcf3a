package events

import (
	"crypto/sha1" //nolint:gosec // digest used for deterministic id derivation, not a security boundary
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tomtom215/eventstats/internal/saltcache"
)

// compilePatterns turns an operator-supplied list of regex fragments (see
// STATS_EVENTS[...].params.robot_patterns) into a single case-insensitive
// matcher, grounded on the teacher's SuspiciousPatterns idiom
// (internal/detection/user_agent_anomaly.go) but generalized to arbitrary
// pattern lists instead of one fixed bot/crawler list.
func compilePatterns(patterns []string) (*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	joined := "(?i)(" + strings.Join(patterns, "|") + ")"
	return regexp.Compile(joined)
}

// DefaultRobotPatterns matches common crawler/automation user agents.
var DefaultRobotPatterns = []string{
	`bot`, `crawler`, `spider`, `curl`, `wget`, `python-requests`,
	`headless`, `phantomjs`, `selenium`, `puppeteer`, `googlebot`, `bingbot`,
}

// DefaultMachinePatterns matches machine-to-machine API clients that are not
// crawlers but also aren't human traffic (monitoring probes, SDKs).
var DefaultMachinePatterns = []string{
	`monitor`, `healthcheck`, `uptime`, `pingdom`, `datadog`, `prometheus`,
}

// FlagRobots returns a Preprocessor that sets FieldIsRobot from the
// user_agent field against the given pattern list. Absent agent ⇒ false.
func FlagRobots(patterns []string) (Preprocessor, error) {
	re, err := compilePatterns(patterns)
	if err != nil {
		return nil, fmt.Errorf("compile robot patterns: %w", err)
	}
	return func(e Event) (Event, error) {
		ua := e.GetString(FieldUserAgent)
		e[FieldIsRobot] = ua != "" && re != nil && re.MatchString(ua)
		return e, nil
	}, nil
}

// FlagMachines returns a Preprocessor that sets FieldIsMachine the same way
// FlagRobots sets FieldIsRobot, against a separate (typically smaller)
// pattern list.
func FlagMachines(patterns []string) (Preprocessor, error) {
	re, err := compilePatterns(patterns)
	if err != nil {
		return nil, fmt.Errorf("compile machine patterns: %w", err)
	}
	return func(e Event) (Event, error) {
		ua := e.GetString(FieldUserAgent)
		e[FieldIsMachine] = ua != "" && re != nil && re.MatchString(ua)
		return e, nil
	}, nil
}

// AnonymizeUser returns a Preprocessor implementing §4.2's anonymize_user
// contract: strip identifying fields, resolve country, and derive
// visitor_id / unique_session_id as SHA-224 digests over a daily salt.
func AnonymizeUser(salts *saltcache.Cache, geo CountryLookup) Preprocessor {
	if geo == nil {
		geo = NullCountryLookup{}
	}
	return func(e Event) (Event, error) {
		ip := e.GetString(FieldIPAddress)
		userID := e.GetString(FieldUserID)
		sessionID := e.GetString(FieldSessionID)
		userAgent := e.GetString(FieldUserAgent)

		ts, ok := e.Timestamp()
		if !ok {
			ts = time.Now().UTC()
		}

		if ip != "" {
			if c := geo.Country(ip); c != "" {
				e[FieldCountry] = c
			}
		}

		salt, err := salts.Salt()
		if err != nil {
			return nil, fmt.Errorf("anonymize_user: %w", err)
		}

		identifier := mostSpecificIdentifier(userID, sessionID, ip, userAgent, ts)
		e[FieldVisitorID] = sha224Hex(salt, identifier)

		// unique_session_id is additionally keyed by the UTC hour timeslice
		// so the same visitor in a different hour yields a different hash.
		hourSlice := ts.UTC().Format("2006010215")
		e[FieldUniqueSessionID] = sha224Hex(salt, identifier+"|"+hourSlice)

		e.Delete(FieldIPAddress, FieldUserID, FieldSessionID, FieldUserAgent)
		return e, nil
	}
}

// mostSpecificIdentifier picks, in order of preference, the user id, else
// the session id, else "ip|user-agent|YYYYMMDDHH" per §4.2.
func mostSpecificIdentifier(userID, sessionID, ip, userAgent string, ts time.Time) string {
	switch {
	case userID != "":
		return "user:" + userID
	case sessionID != "":
		return "session:" + sessionID
	default:
		return fmt.Sprintf("ip:%s|ua:%s|%s", ip, userAgent, ts.UTC().Format("2006010215"))
	}
}

func sha224Hex(salt []byte, identifier string) string {
	h := sha256.New224()
	h.Write(salt)
	h.Write([]byte(identifier))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// BuildUniqueID returns a Preprocessor that composes unique_id from the
// ordered list of natural-key fields (e.g. "bucket_id","file_id" ⇒
// "{bucket_id}_{file_id}"), per the build_*_unique_id family in §4.2.
func BuildUniqueID(fields ...string) Preprocessor {
	return func(e Event) (Event, error) {
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, e.GetString(f))
		}
		e[FieldUniqueID] = strings.Join(parts, "_")
		return e, nil
	}
}

// DropFilter returns a Preprocessor that drops the event whenever predicate
// returns true, implementing the generic "drop-filter" step of §2/C3.
func DropFilter(predicate func(Event) bool) Preprocessor {
	return func(e Event) (Event, error) {
		if predicate(e) {
			return nil, ErrDrop
		}
		return e, nil
	}
}

// Sha1Hex hashes data with SHA-1, used by the indexer to derive the raw
// document id (§3 invariants: "sha1(unique_id ∥ visitor_id)").
func Sha1Hex(data string) string {
	h := sha1.New() //nolint:gosec // id derivation, not a security primitive
	h.Write([]byte(data))
	return fmt.Sprintf("%x", h.Sum(nil))
}
