// Package core composes the independently-developed analysis stages
// behind the single Consumer API surface spec.md §6 names (load, pairs,
// sessions, validate, flow, run_scenario, tls_flow). Structured the way
// gregLibert-smart-card's main.go sequences step1SelectPSE ->
// step2ReadDirectory -> step3SelectCandidates: each exported method here
// is one step that reads a prior step's output and hands the next one
// its own, except this caller is a library surface instead of a demo's
// main().
package core

import (
	"net"
	"strings"
	"time"

	"github.com/gregLibert/xtrace/internal/config"
	"github.com/gregLibert/xtrace/internal/flow"
	"github.com/gregLibert/xtrace/internal/iccid"
	"github.com/gregLibert/xtrace/internal/ingest"
	"github.com/gregLibert/xtrace/internal/pairing"
	"github.com/gregLibert/xtrace/internal/payload"
	"github.com/gregLibert/xtrace/internal/scenario"
	"github.com/gregLibert/xtrace/internal/session"
	"github.com/gregLibert/xtrace/internal/tlsanalysis"
	"github.com/gregLibert/xtrace/internal/trace"
	"github.com/gregLibert/xtrace/internal/validate"
	"github.com/gregLibert/xtrace/internal/xlog"
)

var log = xlog.New("core")

// defaultRoleItemCap mirrors config.DefaultAnalysisConfig's value for a
// Pipeline built with a zero-valued AnalysisConfig.
const defaultRoleItemCap = 20

// Pipeline composes every analysis stage behind the AnalysisConfig a
// deployment tunes once: approved cipher suites, role-detection tables,
// and severity overrides.
type Pipeline struct {
	Config config.AnalysisConfig
}

// New returns a Pipeline bound to cfg.
func New(cfg config.AnalysisConfig) *Pipeline {
	return &Pipeline{Config: cfg}
}

// Load ingests the trace document at path into a trace.Model. Per-item
// warnings recorded while ingesting are returned alongside the model;
// the only error that reaches the caller is a document-level parse
// failure (xerrors.ErrInvalidXML via xerrors.InvalidXMLError), since
// nothing downstream can run without a model (spec §7's propagation
// policy).
func (p *Pipeline) Load(path string) (*trace.Model, []string, error) {
	result, err := ingest.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return result.Model, result.Warnings, nil
}

// Pairs runs the FETCH/TERMINAL-RESPONSE pairing engine over m.
func (p *Pipeline) Pairs(m *trace.Model) *pairing.Result {
	return pairing.Run(m)
}

// Sessions reconstructs channel sessions and resolves each one's
// DetectedRole from TLS SNI, port, and IP evidence (spec §4.5) — the one
// step session.Reconstruct itself cannot take, since resolving a role
// needs internal/payload and internal/tlsanalysis, and both of those
// need session.Session to already exist.
func (p *Pipeline) Sessions(m *trace.Model) *session.Result {
	result := session.Reconstruct(m)
	for _, sess := range result.Sessions {
		p.detectRole(m, sess)
	}
	return result
}

// ICCID scans m for the SELECT EF_ICCID / READ BINARY sequence and
// decodes the card serial number it carries. Not one of spec §6's named
// seven, but both the validator and the flow builder need its output,
// and the CLI's iccid subcommand exposes it directly.
func (p *Pipeline) ICCID(m *trace.Model) []iccid.Detection {
	return iccid.Scan(m)
}

// Validate runs the fixed validation pass (spec §4.10) over m, folding
// in the session reconstructor's violations and the ICCID detections.
func (p *Pipeline) Validate(m *trace.Model, sessions *session.Result, iccidDetections []iccid.Detection) []validate.Issue {
	return validate.Run(m, sessions, iccidDetections, validate.Severity(p.Config.NoServiceSeverity))
}

// Flow merges sessions and card events into the single chronological
// timeline spec §4.11 describes.
func (p *Pipeline) Flow(m *trace.Model, sessions *session.Result, iccidDetections []iccid.Detection) []flow.Row {
	var sess []*session.Session
	if sessions != nil {
		sess = sessions.Sessions
	}
	return flow.Build(m, sess, iccidDetections)
}

// RunScenario evaluates steps against timeline per spec §4.12.
func (p *Pipeline) RunScenario(timeline []flow.Row, steps []scenario.Step, constraints scenario.Constraints, issues []validate.Issue) *scenario.Result {
	return scenario.Run(timeline, steps, constraints, issues)
}

// TlsMessage is one record-layer event observed on either side of a BIP
// session's TLS stream, tagged with which direction produced it. Records
// are reported in each direction's own order, outbound before inbound —
// spec §4.8 explicitly does not require cross-direction interleaving,
// since each direction's record layer is a single ordered stream on its
// own.
type TlsMessage struct {
	Direction payload.Direction
	Event     tlsanalysis.Event
}

// TLSFlow reassembles sess's two payload directions and walks both as
// TLS record streams, returning every observed record tagged by
// direction (spec §6's tls_flow).
func (p *Pipeline) TLSFlow(m *trace.Model, sess *session.Session) []TlsMessage {
	outBuf, inBuf := payload.Reassemble(m, sess)
	outbound := tlsanalysis.AnalyzeDirection(outBuf.Data)
	inbound := tlsanalysis.AnalyzeDirection(inBuf.Data)

	messages := make([]TlsMessage, 0, len(outbound.Events)+len(inbound.Events))
	for _, e := range outbound.Events {
		messages = append(messages, TlsMessage{Direction: payload.DirectionMEToSIM, Event: e})
	}
	for _, e := range inbound.Events {
		messages = append(messages, TlsMessage{Direction: payload.DirectionSIMToME, Event: e})
	}
	return messages
}

// Compliance runs the TLS compliance checks (spec §4.8) over sess's
// negotiated handshake.
func (p *Pipeline) Compliance(m *trace.Model, sess *session.Session) []tlsanalysis.ComplianceIssue {
	outBuf, inBuf := payload.Reassemble(m, sess)
	outbound := tlsanalysis.AnalyzeDirection(outBuf.Data)
	inbound := tlsanalysis.AnalyzeDirection(inBuf.Data)
	hs := tlsanalysis.Summarize(outbound, inbound)

	ts := sessionTimestamp(m, sess)
	return tlsanalysis.CheckCompliance(hs, p.Config.ApprovedCipherSuites, ts)
}

func sessionTimestamp(m *trace.Model, sess *session.Session) *time.Time {
	if item := m.At(sess.OpenIndex); item != nil {
		return item.Timestamp
	}
	return nil
}

// roleItemCap is the "N" in spec §4.5's role-detection window, defaulting
// to 20 when the Pipeline was built with a zero-valued AnalysisConfig.
func (p *Pipeline) roleItemCap() int {
	if p.Config.RoleItemCap > 0 {
		return p.Config.RoleItemCap
	}
	return defaultRoleItemCap
}

// detectRole implements spec §4.5's priority order: SNI substring match
// first, then UDP/53, then a configurable IP table, else Unknown.
// Payload reassembly for role detection is capped to the session's first
// N items to keep the TLS walk bounded on long sessions.
func (p *Pipeline) detectRole(m *trace.Model, sess *session.Session) {
	bounded := *sess
	if cap := p.roleItemCap(); len(bounded.ItemIndices) > cap {
		bounded.ItemIndices = bounded.ItemIndices[:cap]
	}

	outBuf, inBuf := payload.Reassemble(m, &bounded)
	outbound := tlsanalysis.AnalyzeDirection(outBuf.Data)
	inbound := tlsanalysis.AnalyzeDirection(inBuf.Data)
	hs := tlsanalysis.Summarize(outbound, inbound)

	if hs.ClientHello != nil && hs.ClientHello.SNI != "" {
		if role := roleFromHostname(hs.ClientHello.SNI, p.Config.HostnameRolePatterns); role != session.RoleUnknown {
			sess.DetectedRole = role
			log.Debug().Int("channel", sess.ChannelID).Str("role", string(role)).Msg("role detected from SNI")
			return
		}
	}

	if sess.TransportKnd == session.TransportUDP && sess.Port != nil && *sess.Port == 53 {
		sess.DetectedRole = session.RoleDNS
		return
	}

	if role := roleFromIP(sess.IPAddresses, p.Config.IPRoleTable); role != session.RoleUnknown {
		sess.DetectedRole = role
		return
	}

	sess.DetectedRole = session.RoleUnknown
}

// builtinHostnameRoles implements spec §4.5's fixed SNI substring table;
// config.AnalysisConfig.HostnameRolePatterns can add to or override it.
var builtinHostnameRoles = []struct {
	pattern string
	role    session.Role
}{
	{"smdpplus", session.RoleSMDP},
	{"smdp", session.RoleSMDP},
	{"smds", session.RoleSMDS},
	{"dpplus", session.RoleEIM},
	{"eim", session.RoleEIM},
	{"tac.", session.RoleTAC},
	{"thales", session.RoleTAC},
}

func roleFromHostname(hostname string, extra map[string]string) session.Role {
	lower := strings.ToLower(hostname)
	for pattern, roleName := range extra {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return session.Role(roleName)
		}
	}
	for _, bp := range builtinHostnameRoles {
		if strings.Contains(lower, bp.pattern) {
			return bp.role
		}
	}
	return session.RoleUnknown
}

// roleFromIP implements spec §4.5's IP-based fallback: table keys may be
// CIDRs (matched by containment) or plain prefixes (matched as a string
// prefix), since the spec leaves the table's exact shape to the caller.
func roleFromIP(addresses []string, table map[string]string) session.Role {
	for _, addr := range addresses {
		ip := net.ParseIP(addr)
		for prefix, roleName := range table {
			if _, cidr, err := net.ParseCIDR(prefix); err == nil {
				if ip != nil && cidr.Contains(ip) {
					return session.Role(roleName)
				}
				continue
			}
			if strings.HasPrefix(addr, prefix) {
				return session.Role(roleName)
			}
		}
	}
	return session.RoleUnknown
}
