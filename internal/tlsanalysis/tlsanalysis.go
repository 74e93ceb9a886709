// Package tlsanalysis hand-decodes a TLS record/handshake stream out of a
// reassembled direction buffer, the way ajkula-CyberRaven's
// pkg/sniffer/tls_analyzer.go decodes ClientHello/ServerHello/Certificate
// bytes directly rather than relying on crypto/tls (which refuses to
// speak to anything that isn't a live, negotiating connection). Adapted
// from a live gopacket.Packet pipeline to a post-hoc byte buffer: there
// is no packet metadata here, only the two reassembled directions of one
// BIP session.
package tlsanalysis

import (
	"crypto/x509"
	"fmt"
	"strings"
	"time"
)

// RecordKind is a TLS record's content type (RFC 8446 §5.1).
type RecordKind uint8

const (
	RecordChangeCipherSpec RecordKind = 20
	RecordAlert            RecordKind = 21
	RecordHandshake        RecordKind = 22
	RecordApplicationData  RecordKind = 23
)

func (k RecordKind) String() string {
	switch k {
	case RecordChangeCipherSpec:
		return "ChangeCipherSpec"
	case RecordAlert:
		return "Alert"
	case RecordHandshake:
		return "Handshake"
	case RecordApplicationData:
		return "ApplicationData"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// HandshakeMessage is the tagged variant for one decoded Handshake-layer
// message. Exactly one concrete type populates Event.Message.
type HandshakeMessage interface {
	handshakeVariant()
}

// Extension is one ClientHello/ServerHello extension. SNIHostname and
// ALPNProtocol are populated only for the extension types that carry them.
type Extension struct {
	Type         uint16
	Name         string
	Raw          []byte
	SNIHostname  string
	ALPNProtocol string
}

// ClientHello is the decoded first handshake message of a TLS connection.
type ClientHello struct {
	Version            uint16
	Random             []byte
	SessionID          []byte
	CipherSuites       []uint16
	CompressionMethods []byte
	Extensions         []Extension
	SNI                string
	ALPN               string
}

func (*ClientHello) handshakeVariant() {}

// ServerHello is the server's reply, naming the cipher suite it chose.
type ServerHello struct {
	Version           uint16
	Random            []byte
	SessionID         []byte
	CipherSuite       uint16
	CompressionMethod byte
	Extensions        []Extension
}

func (*ServerHello) handshakeVariant() {}

// CertificateMessage carries the server's (or client's) certificate
// chain, decoded with crypto/x509 the same way ajkula-CyberRaven's
// analyzeCertificate does — no hand-rolled ASN.1 walk needed once the
// TLS Certificate message framing is stripped off.
type CertificateMessage struct {
	Certificates []*x509.Certificate
}

func (*CertificateMessage) handshakeVariant() {}

// OpaqueHandshake is any handshake message this package recognises by
// type only (ServerKeyExchange, ServerHelloDone, ClientKeyExchange,
// Finished) or doesn't recognise at all.
type OpaqueHandshake struct {
	Label  string
	Length int
}

func (*OpaqueHandshake) handshakeVariant() {}

// EncryptedHandshake stands in for a Handshake record seen after a
// ChangeCipherSpec in the same direction: its contents are encrypted and
// this package has no keys, so only the byte length is reported.
type EncryptedHandshake struct {
	Length int
}

func (*EncryptedHandshake) handshakeVariant() {}

// Event is one record observed while walking a direction buffer.
type Event struct {
	Kind             RecordKind
	Message          HandshakeMessage // set only when Kind == RecordHandshake
	AlertLevel       byte             // set only when Kind == RecordAlert
	AlertDescription byte
	Length           int // set only when Kind == RecordApplicationData
}

// DirectionResult is everything observed walking one direction's
// reassembled byte buffer.
type DirectionResult struct {
	Events    []Event
	Truncated bool
}

// AnalyzeDirection walks data as a sequence of TLS records
// `type(1) | version(2) | length(2) | payload(length)`, concatenating
// consecutive Handshake record payloads (a handshake message may span
// more than one record) before parsing handshake messages out of them.
func AnalyzeDirection(data []byte) *DirectionResult {
	result := &DirectionResult{}
	var handshakeBuf []byte
	ccsSeen := false
	offset := 0

	for offset+5 <= len(data) {
		recType := RecordKind(data[offset])
		length := int(data[offset+3])<<8 | int(data[offset+4])
		if offset+5+length > len(data) {
			result.Truncated = true
			break
		}
		payload := data[offset+5 : offset+5+length]

		switch recType {
		case RecordHandshake:
			if ccsSeen {
				result.Events = append(result.Events, Event{Kind: RecordHandshake, Message: &EncryptedHandshake{Length: len(payload)}})
			} else {
				handshakeBuf = append(handshakeBuf, payload...)
				var msgs []Event
				handshakeBuf, msgs = drainHandshakeMessages(handshakeBuf)
				result.Events = append(result.Events, msgs...)
			}
		case RecordChangeCipherSpec:
			ccsSeen = true
			result.Events = append(result.Events, Event{Kind: RecordChangeCipherSpec})
		case RecordAlert:
			ev := Event{Kind: RecordAlert}
			if len(payload) >= 2 {
				ev.AlertLevel, ev.AlertDescription = payload[0], payload[1]
			}
			result.Events = append(result.Events, ev)
		case RecordApplicationData:
			result.Events = append(result.Events, Event{Kind: RecordApplicationData, Length: len(payload)})
		}

		offset += 5 + length
	}

	return result
}

// drainHandshakeMessages pulls every complete `msg_type(1) | length(3) |
// body` message off the front of buf, returning the leftover
// (incomplete) tail for the next record's bytes to extend.
func drainHandshakeMessages(buf []byte) ([]byte, []Event) {
	var events []Event
	offset := 0
	for offset+4 <= len(buf) {
		msgType := buf[offset]
		msgLen := int(buf[offset+1])<<16 | int(buf[offset+2])<<8 | int(buf[offset+3])
		if offset+4+msgLen > len(buf) {
			break
		}
		body := buf[offset+4 : offset+4+msgLen]
		events = append(events, Event{Kind: RecordHandshake, Message: parseHandshakeMessage(msgType, body)})
		offset += 4 + msgLen
	}
	return buf[offset:], events
}

func parseHandshakeMessage(msgType byte, body []byte) HandshakeMessage {
	switch msgType {
	case 1:
		return parseClientHello(body)
	case 2:
		return parseServerHello(body)
	case 11:
		return parseCertificateMessage(body)
	case 12:
		return &OpaqueHandshake{Label: "ServerKeyExchange", Length: len(body)}
	case 14:
		return &OpaqueHandshake{Label: "ServerHelloDone", Length: len(body)}
	case 16:
		return &OpaqueHandshake{Label: "ClientKeyExchange", Length: len(body)}
	case 20:
		return &OpaqueHandshake{Label: "Finished", Length: len(body)}
	default:
		return &OpaqueHandshake{Label: fmt.Sprintf("Unknown(%d)", msgType), Length: len(body)}
	}
}

// parseClientHello follows ajkula-CyberRaven's parseClientHelloExtensions
// offsets, shifted back 4 bytes because body here already excludes the
// msg_type/length handshake header that file's data parameter included.
func parseClientHello(body []byte) *ClientHello {
	ch := &ClientHello{}
	if len(body) < 35 {
		return ch
	}
	ch.Version = uint16(body[0])<<8 | uint16(body[1])
	ch.Random = append([]byte(nil), body[2:34]...)

	sessionIDLen := int(body[34])
	offset := 35 + sessionIDLen
	if offset+2 > len(body) {
		return ch
	}
	ch.SessionID = append([]byte(nil), body[35:offset]...)

	cipherLen := int(body[offset])<<8 | int(body[offset+1])
	offset += 2
	if offset+cipherLen > len(body) {
		return ch
	}
	for i := 0; i+1 < cipherLen; i += 2 {
		ch.CipherSuites = append(ch.CipherSuites, uint16(body[offset+i])<<8|uint16(body[offset+i+1]))
	}
	offset += cipherLen

	if offset >= len(body) {
		return ch
	}
	compLen := int(body[offset])
	offset++
	if offset+compLen > len(body) {
		return ch
	}
	ch.CompressionMethods = append([]byte(nil), body[offset:offset+compLen]...)
	offset += compLen

	if offset+2 > len(body) {
		return ch
	}
	extLen := int(body[offset])<<8 | int(body[offset+1])
	offset += 2
	if offset+extLen > len(body) {
		extLen = len(body) - offset
	}
	ch.Extensions = parseExtensions(body[offset : offset+extLen])
	for _, ext := range ch.Extensions {
		switch ext.Type {
		case extTypeSNI:
			ch.SNI = ext.SNIHostname
		case extTypeALPN:
			ch.ALPN = ext.ALPNProtocol
		}
	}
	return ch
}

func parseServerHello(body []byte) *ServerHello {
	sh := &ServerHello{}
	if len(body) < 35 {
		return sh
	}
	sh.Version = uint16(body[0])<<8 | uint16(body[1])
	sh.Random = append([]byte(nil), body[2:34]...)

	sessionIDLen := int(body[34])
	offset := 35 + sessionIDLen
	if offset+3 > len(body) {
		return sh
	}
	sh.SessionID = append([]byte(nil), body[35:offset]...)
	sh.CipherSuite = uint16(body[offset])<<8 | uint16(body[offset+1])
	offset += 2
	sh.CompressionMethod = body[offset]
	offset++

	if offset+2 <= len(body) {
		extLen := int(body[offset])<<8 | int(body[offset+1])
		offset += 2
		if offset+extLen > len(body) {
			extLen = len(body) - offset
		}
		sh.Extensions = parseExtensions(body[offset : offset+extLen])
	}
	return sh
}

// parseCertificateMessage follows the TLS Certificate message framing:
// cert_list_length(3) then repeated cert_length(3) | cert_bytes.
func parseCertificateMessage(body []byte) *CertificateMessage {
	cm := &CertificateMessage{}
	if len(body) < 3 {
		return cm
	}
	certsTotalLen := int(body[0])<<16 | int(body[1])<<8 | int(body[2])
	offset := 3
	end := offset + certsTotalLen
	if end > len(body) {
		end = len(body)
	}

	for offset+3 <= end {
		certLen := int(body[offset])<<16 | int(body[offset+1])<<8 | int(body[offset+2])
		offset += 3
		if offset+certLen > end {
			break
		}
		certBytes := body[offset : offset+certLen]
		if cert, err := x509.ParseCertificate(certBytes); err == nil {
			cm.Certificates = append(cm.Certificates, cert)
		}
		offset += certLen
	}
	return cm
}

const (
	extTypeSNI                 = 0
	extTypeMaxFragmentLength   = 1
	extTypeSupportedGroups     = 10
	extTypeECPointFormats      = 11
	extTypeSignatureAlgorithms = 13
	extTypeALPN                = 16
)

func parseExtensions(data []byte) []Extension {
	var exts []Extension
	offset := 0
	for offset+4 <= len(data) {
		extType := uint16(data[offset])<<8 | uint16(data[offset+1])
		extLen := int(data[offset+2])<<8 | int(data[offset+3])
		offset += 4
		if offset+extLen > len(data) {
			break
		}
		extData := data[offset : offset+extLen]
		ext := Extension{Type: extType, Name: extensionName(extType), Raw: extData}
		switch extType {
		case extTypeSNI:
			ext.SNIHostname = parseSNI(extData)
		case extTypeALPN:
			ext.ALPNProtocol = parseALPN(extData)
		}
		exts = append(exts, ext)
		offset += extLen
	}
	return exts
}

func extensionName(t uint16) string {
	switch t {
	case extTypeSNI:
		return "server_name_indication"
	case extTypeMaxFragmentLength:
		return "max_fragment_length"
	case extTypeSupportedGroups:
		return "supported_groups"
	case extTypeECPointFormats:
		return "ec_point_formats"
	case extTypeSignatureAlgorithms:
		return "signature_algorithms"
	case extTypeALPN:
		return "application_layer_protocol_negotiation"
	default:
		return fmt.Sprintf("unknown_%d", t)
	}
}

// parseSNI reads the first (and in practice only) entry of the server
// name list: name_type(1) | name_length(2) | name.
func parseSNI(data []byte) string {
	if len(data) < 5 {
		return ""
	}
	nameLen := int(data[3])<<8 | int(data[4])
	if len(data) < 5+nameLen {
		return ""
	}
	return string(data[5 : 5+nameLen])
}

func parseALPN(data []byte) string {
	if len(data) < 3 {
		return ""
	}
	protoLen := int(data[2])
	if len(data) < 3+protoLen {
		return ""
	}
	return string(data[3 : 3+protoLen])
}

// Handshake is the session-level view assembled from both directions'
// events: the ClientHello came from the ME->SIM (outbound) buffer, the
// ServerHello and Certificate from SIM->ME (inbound).
type Handshake struct {
	ClientHello  *ClientHello
	ServerHello  *ServerHello
	Certificates []*x509.Certificate
	Alerts       []Event
}

// Summarize pulls the negotiation out of each direction's already-parsed
// events; it does not re-walk the buffers.
func Summarize(outbound, inbound *DirectionResult) *Handshake {
	hs := &Handshake{}
	for _, e := range outbound.Events {
		if ch, ok := e.Message.(*ClientHello); ok {
			hs.ClientHello = ch
		}
		if e.Kind == RecordAlert {
			hs.Alerts = append(hs.Alerts, e)
		}
	}
	for _, e := range inbound.Events {
		switch m := e.Message.(type) {
		case *ServerHello:
			hs.ServerHello = m
		case *CertificateMessage:
			hs.Certificates = append(hs.Certificates, m.Certificates...)
		}
		if e.Kind == RecordAlert {
			hs.Alerts = append(hs.Alerts, e)
		}
	}
	return hs
}

// ComplianceIssue is one Warning-level finding from CheckCompliance.
type ComplianceIssue struct {
	Kind   string
	Detail string
}

// CheckCompliance implements spec §4.8's four compliance checks: TLS
// version below 1.2, a chosen cipher outside an (optional) approved
// list, a certificate whose validity window excludes the session
// timestamp, and a single-certificate (self-signed) chain.
func CheckCompliance(hs *Handshake, approvedCipherSuites []string, sessionTimestamp *time.Time) []ComplianceIssue {
	var issues []ComplianceIssue

	if hs.ServerHello != nil && hs.ServerHello.Version < 0x0303 {
		issues = append(issues, ComplianceIssue{Kind: "LowTLSVersion", Detail: versionName(hs.ServerHello.Version)})
	}

	if hs.ServerHello != nil && len(approvedCipherSuites) > 0 {
		name := CipherSuiteName(hs.ServerHello.CipherSuite)
		if !containsFold(approvedCipherSuites, name) {
			issues = append(issues, ComplianceIssue{Kind: "UnapprovedCipherSuite", Detail: name})
		}
	}

	if sessionTimestamp != nil {
		for _, cert := range hs.Certificates {
			if sessionTimestamp.Before(cert.NotBefore) || sessionTimestamp.After(cert.NotAfter) {
				issues = append(issues, ComplianceIssue{Kind: "CertificateValidityWindow", Detail: cert.Subject.String()})
			}
		}
	}

	if len(hs.Certificates) == 1 {
		issues = append(issues, ComplianceIssue{Kind: "SelfSignedChain", Detail: hs.Certificates[0].Subject.String()})
	}

	return issues
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func versionName(v uint16) string {
	switch v {
	case 0x0300:
		return "SSL 3.0"
	case 0x0301:
		return "TLS 1.0"
	case 0x0302:
		return "TLS 1.1"
	case 0x0303:
		return "TLS 1.2"
	case 0x0304:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("0x%04X", v)
	}
}

// CipherSuiteName translates a cipher suite code into its IANA name,
// the table ajkula-CyberRaven's translateCipherSuite carries, extended
// with the three TLS 1.3 suites it predates.
func CipherSuiteName(suite uint16) string {
	switch suite {
	case 0x0004:
		return "TLS_RSA_WITH_RC4_128_MD5"
	case 0x0005:
		return "TLS_RSA_WITH_RC4_128_SHA"
	case 0x000A:
		return "TLS_RSA_WITH_3DES_EDE_CBC_SHA"
	case 0x002F:
		return "TLS_RSA_WITH_AES_128_CBC_SHA"
	case 0x0035:
		return "TLS_RSA_WITH_AES_256_CBC_SHA"
	case 0x009C:
		return "TLS_RSA_WITH_AES_128_GCM_SHA256"
	case 0x009D:
		return "TLS_RSA_WITH_AES_256_GCM_SHA384"
	case 0xC013:
		return "TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA"
	case 0xC014:
		return "TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA"
	case 0xC027:
		return "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"
	case 0xC028:
		return "TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384"
	case 0xCCA8:
		return "TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256"
	case 0x1301:
		return "TLS_AES_128_GCM_SHA256"
	case 0x1302:
		return "TLS_AES_256_GCM_SHA384"
	case 0x1303:
		return "TLS_CHACHA20_POLY1305_SHA256"
	default:
		return fmt.Sprintf("0x%04X", suite)
	}
}
