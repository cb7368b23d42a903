package ping

import (
	"context"
	"time"

	"github.com/ployz-io/zen/internal/transport"
)

// fallbackTemporalTTL is used only when a peer's request carries no usable
// timeout (a zero or negative value, e.g. a pre-§6 sender) — 2× the default
// 3s ping_timeout.
const fallbackTemporalTTL = 2 * 3 * time.Second

// temporalTTL derives the gossip expiry from the sender's own declared
// ping_timeout (§4.2: "auto-expire 2·T after receipt"), so a receiver whose
// local ping_timeout differs from the sender's still expires the entry at
// the rate the sender actually intended.
func temporalTTL(senderTimeout time.Duration) time.Duration {
	if senderTimeout <= 0 {
		return fallbackTemporalTTL
	}
	return 2 * senderTimeout
}

// RegisterHandlers installs the receiver-side ping.unicast and
// ping.unicast.v2 handlers on t, so peers pinging this node get a reply
// carrying everything recently heard (§4.2).
func (s *Service) RegisterHandlers(t transport.Transport) {
	t.RegisterHandler(ActionUnicastV2, s.handleV2)
	t.RegisterHandler(ActionUnicast, s.handleLegacy)
}

func (s *Service) handleV2(ctx context.Context, fromAddr string, payload []byte) ([]byte, error) {
	var req v2Request
	if err := transport.DecodeInto(payload, &req); err != nil {
		return nil, err
	}
	s.temporal.Add(req.Sender, temporalTTL(req.Timeout))

	resps := s.temporal.Snapshot()
	resps = append(resps, s.selfResponse())
	return encodeReply(v2Reply{Responses: resps})
}

func (s *Service) handleLegacy(ctx context.Context, fromAddr string, payload []byte) ([]byte, error) {
	var req legacyRequest
	if err := transport.DecodeInto(payload, &req); err != nil {
		return nil, err
	}
	s.temporal.Add(req.Sender.toPingResponse(), temporalTTL(req.Timeout))

	resps := s.temporal.Snapshot()
	out := make([]legacyResponse, 0, len(resps)+1)
	for _, r := range resps {
		out = append(out, legacyFrom(r))
	}
	out = append(out, legacyFrom(s.selfResponse()))
	return encodeReply(legacyReply{Responses: out})
}
