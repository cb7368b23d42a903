package ping

import (
	"encoding/json"
	"time"

	"github.com/ployz-io/zen/internal/cluster"
)

func encodeReply(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Action names registered on the transport. v2 carries HasJoinedOnce; the
// legacy action is the fallback target when a peer doesn't recognize v2
// (§4.2 version negotiation) and is always used for seed targets whose
// protocol version is unknown.
const (
	ActionUnicastV2 = "ping.unicast.v2"
	ActionUnicast   = "ping.unicast"
)

// v2Request is the richer wire payload: the sender's own belief about
// itself, including has_joined_once, plus the sender's configured
// ping_timeout so the receiver can size its temporal-response expiry as
// 2×timeout instead of guessing at a default (§4.2, §6).
type v2Request struct {
	RequestID string               `json:"request_id"`
	Timeout   time.Duration        `json:"timeout"`
	Sender    cluster.PingResponse `json:"sender"`
}

type v2Reply struct {
	Responses []cluster.PingResponse `json:"responses"`
}

// legacyResponse is the pre-has_joined_once wire shape of a PingResponse.
type legacyResponse struct {
	Responder   cluster.Node  `json:"responder"`
	Master      *cluster.Node `json:"master"`
	ClusterName string        `json:"cluster_name"`
	RequestID   string        `json:"request_id"`
}

func (r legacyResponse) toPingResponse() cluster.PingResponse {
	return cluster.PingResponse{
		Responder:   r.Responder,
		Master:      r.Master,
		ClusterName: r.ClusterName,
		RequestID:   r.RequestID,
	}
}

func legacyFrom(p cluster.PingResponse) legacyResponse {
	return legacyResponse{
		Responder:   p.Responder,
		Master:      p.Master,
		ClusterName: p.ClusterName,
		RequestID:   p.RequestID,
	}
}

type legacyRequest struct {
	RequestID string         `json:"request_id"`
	Timeout   time.Duration  `json:"timeout"`
	Sender    legacyResponse `json:"sender"`
}

type legacyReply struct {
	Responses []legacyResponse `json:"responses"`
}
