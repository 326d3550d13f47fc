package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/effects"
	"github.com/hxrts/aura-sub001/pkg/flow"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
	"github.com/hxrts/aura-sub001/pkg/journal"
)

func aerrUnsupported(kind effects.Kind) error {
	return aerr.UnsupportedEffect(kind.String())
}

func decodeParams(op string, raw []byte, dst interface{}) error {
	if len(raw) == 0 {
		return aerr.Serialization("%s: empty params", op)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return aerr.Wrap(aerr.CodeSerialization, err, "%s: decode params", op)
	}
	return nil
}

func encodeResult(op string, v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeSerialization, err, "%s: encode result", op)
	}
	return raw, nil
}

func (c *Composite) dispatchNetwork(ctx context.Context, op string, params []byte) ([]byte, error) {
	switch op {
	case "send_to_peer":
		var p struct {
			Peer identifiers.DeviceId `json:"peer"`
			Data []byte               `json:"data"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		return nil, c.network.SendToPeer(ctx, p.Peer, p.Data)
	case "broadcast":
		var p struct {
			Data []byte `json:"data"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		return nil, c.network.Broadcast(ctx, p.Data)
	case "receive":
		peer, data, err := c.network.Receive(ctx)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, struct {
			Peer identifiers.DeviceId `json:"peer"`
			Data []byte               `json:"data"`
		}{Peer: peer, Data: data})
	case "connected_peers":
		peers, err := c.network.ConnectedPeers(ctx)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, peers)
	}
	return nil, aerr.UnknownOperation(string(effects.KindNetwork), op)
}

func (c *Composite) dispatchStorage(ctx context.Context, op string, params []byte) ([]byte, error) {
	switch op {
	case "put":
		var p struct {
			Key   string `json:"key"`
			Value []byte `json:"value"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		return nil, c.storage.Put(ctx, p.Key, p.Value)
	case "get":
		var p struct {
			Key string `json:"key"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		value, found, err := c.storage.Get(ctx, p.Key)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, struct {
			Value []byte `json:"value"`
			Found bool   `json:"found"`
		}{Value: value, Found: found})
	case "delete":
		var p struct {
			Key string `json:"key"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		return nil, c.storage.Delete(ctx, p.Key)
	case "scan_prefix":
		var p struct {
			Prefix string `json:"prefix"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		entries, err := c.storage.ScanPrefix(ctx, p.Prefix)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, entries)
	}
	return nil, aerr.UnknownOperation(string(effects.KindStorage), op)
}

func (c *Composite) dispatchCrypto(ctx context.Context, op string, params []byte) ([]byte, error) {
	switch op {
	case "hash":
		var p struct {
			Data []byte `json:"data"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		return encodeResult(op, c.crypto.Hash(ctx, p.Data))
	case "hmac":
		var p struct {
			Key  []byte `json:"key"`
			Data []byte `json:"data"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		return encodeResult(op, c.crypto.HMAC(ctx, p.Key, p.Data))
	case "generate_keypair":
		public, private, err := c.crypto.GenerateKeypair(ctx)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, struct {
			Public  []byte `json:"public"`
			Private []byte `json:"private"`
		}{Public: public, Private: private})
	case "sign":
		var p struct {
			Message    []byte `json:"message"`
			PrivateKey []byte `json:"private_key"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		sig, err := c.crypto.Sign(ctx, p.Message, p.PrivateKey)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, sig)
	case "verify":
		var p struct {
			Message   []byte `json:"message"`
			Signature []byte `json:"signature"`
			PublicKey []byte `json:"public_key"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		ok, err := c.crypto.Verify(ctx, p.Message, p.Signature, p.PublicKey)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, ok)
	case "verify_aggregate":
		var p struct {
			Message        []byte `json:"message"`
			Signature      []byte `json:"signature"`
			GroupPublicKey []byte `json:"group_public_key"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		ok, err := c.crypto.VerifyAggregate(ctx, p.Message, p.Signature, p.GroupPublicKey)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, ok)
	case "derive_key":
		var p struct {
			Master []byte `json:"master"`
			Salt   []byte `json:"salt"`
			Info   []byte `json:"info"`
			Length int    `json:"length"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		key, err := c.crypto.DeriveKey(ctx, p.Master, p.Salt, p.Info, p.Length)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, key)
	case "seal":
		var p struct {
			Plaintext []byte `json:"plaintext"`
			Key       []byte `json:"key"`
			Nonce     []byte `json:"nonce"`
			Ad        []byte `json:"ad"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		out, err := c.crypto.Seal(ctx, p.Plaintext, p.Key, p.Nonce, p.Ad)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, out)
	case "open":
		var p struct {
			Ciphertext []byte `json:"ciphertext"`
			Key        []byte `json:"key"`
			Nonce      []byte `json:"nonce"`
			Ad         []byte `json:"ad"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		out, err := c.crypto.Open(ctx, p.Ciphertext, p.Key, p.Nonce, p.Ad)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, out)
	}
	return nil, aerr.UnknownOperation(string(effects.KindCrypto), op)
}

func (c *Composite) dispatchTime(ctx context.Context, op string, params []byte) ([]byte, error) {
	switch op {
	case "now":
		return encodeResult(op, c.time.Now(ctx).UnixNano())
	case "sleep":
		var p struct {
			Millis int64 `json:"millis"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		return nil, c.time.Sleep(ctx, time.Duration(p.Millis)*time.Millisecond)
	case "current_epoch":
		return encodeResult(op, c.time.CurrentEpoch(ctx))
	}
	return nil, aerr.UnknownOperation(string(effects.KindTime), op)
}

func (c *Composite) dispatchConsole(ctx context.Context, op string, params []byte) ([]byte, error) {
	switch op {
	case "print":
		var p struct {
			Line string `json:"line"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		return nil, c.console.Print(ctx, p.Line)
	case "read_line":
		line, err := c.console.ReadLine(ctx)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, line)
	}
	return nil, aerr.UnknownOperation(string(effects.KindConsole), op)
}

func (c *Composite) dispatchRandom(ctx context.Context, op string, params []byte) ([]byte, error) {
	switch op {
	case "random_bytes":
		var p struct {
			N int `json:"n"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		out, err := c.random.RandomBytes(ctx, p.N)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, out)
	case "random_u64":
		v, err := c.random.RandomU64(ctx)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, v)
	case "random_range":
		var p struct {
			Min uint64 `json:"min"`
			Max uint64 `json:"max"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		v, err := c.random.RandomRange(ctx, p.Min, p.Max)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, v)
	}
	return nil, aerr.UnknownOperation(string(effects.KindRandom), op)
}

func (c *Composite) dispatchLedger(ctx context.Context, op string, params []byte) ([]byte, error) {
	switch op {
	case "append_fact":
		var p struct {
			Key   string `json:"key"`
			Value []byte `json:"value"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		return nil, c.ledger.AppendFact(ctx, p.Key, p.Value)
	case "query_facts":
		var p struct {
			Prefix string `json:"prefix"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		facts, err := c.ledger.QueryFacts(ctx, p.Prefix)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, facts)
	}
	return nil, aerr.UnknownOperation(string(effects.KindLedger), op)
}

func (c *Composite) dispatchJournal(ctx context.Context, op string, params []byte) ([]byte, error) {
	switch op {
	case "append_attested_op":
		var p struct {
			Op []byte `json:"op"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		decoded, err := journal.DecodeAttestedOp(p.Op)
		if err != nil {
			return nil, err
		}
		cid, err := c.journal.AppendAttestedOp(ctx, decoded)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, cid)
	case "merge_remote_ops":
		var p struct {
			Ops [][]byte `json:"ops"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		ops := make([]journal.AttestedOp, 0, len(p.Ops))
		for _, raw := range p.Ops {
			decoded, err := journal.DecodeAttestedOp(raw)
			if err != nil {
				continue
			}
			ops = append(ops, decoded)
		}
		accepted, err := c.journal.MergeRemoteOps(ctx, ops)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, accepted)
	case "commitment":
		commitment, err := c.journal.Commitment(ctx)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, commitment)
	case "oplog_digest":
		digest, err := c.journal.OplogDigest(ctx)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, digest)
	case "get_flow_budget":
		var p struct {
			Context identifiers.ContextId `json:"context"`
			Peer    identifiers.DeviceId  `json:"peer"`
			Epoch   identifiers.Epoch     `json:"epoch"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		budget, err := c.journal.GetFlowBudget(ctx, p.Context, p.Peer, p.Epoch)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, budget)
	case "update_flow_budget":
		var p struct {
			Context identifiers.ContextId `json:"context"`
			Peer    identifiers.DeviceId  `json:"peer"`
			Budget  flow.Budget           `json:"budget"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		return nil, c.journal.UpdateFlowBudget(ctx, p.Context, p.Peer, p.Budget)
	}
	return nil, aerr.UnknownOperation(string(effects.KindJournal), op)
}

func (c *Composite) dispatchChoreo(ctx context.Context, op string, params []byte) ([]byte, error) {
	switch op {
	case "send_to_role":
		var p struct {
			Role string `json:"role"`
			Data []byte `json:"data"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		return nil, c.choreo.SendToRole(ctx, p.Role, p.Data)
	case "receive_from_role":
		var p struct {
			Role string `json:"role"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		payload, err := c.choreo.ReceiveFromRole(ctx, p.Role)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, payload)
	}
	return nil, aerr.UnknownOperation(string(effects.KindChoreographic), op)
}

func (c *Composite) dispatchSystem(ctx context.Context, op string, params []byte) ([]byte, error) {
	switch op {
	case "log":
		var p struct {
			Level     string            `json:"level"`
			Component string            `json:"component"`
			Message   string            `json:"message"`
			Fields    map[string]string `json:"fields,omitempty"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		return nil, c.system.LogWithContext(ctx, p.Level, p.Component, p.Message, p.Fields)
	case "set_config":
		var p struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		return nil, c.system.SetConfig(ctx, p.Key, p.Value)
	case "get_config":
		var p struct {
			Key string `json:"key"`
		}
		if err := decodeParams(op, params, &p); err != nil {
			return nil, err
		}
		value, err := c.system.GetConfig(ctx, p.Key)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, value)
	case "health_check":
		ok, err := c.system.HealthCheck(ctx)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, ok)
	case "metrics":
		metrics, err := c.system.Metrics(ctx)
		if err != nil {
			return nil, err
		}
		return encodeResult(op, metrics)
	}
	return nil, aerr.UnknownOperation(string(effects.KindSystem), op)
}
