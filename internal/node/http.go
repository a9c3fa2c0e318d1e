package node

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klingon-tech/klingnet-lightcore/pkg/coreerr"
	"github.com/klingon-tech/klingnet-lightcore/pkg/txmodel"
)

// HTTPTransport implements Transport against a node's REST-ish JSON
// endpoints. Every call carries the caller's context deadline as its HTTP
// timeout; each request carries a user-supplied timeout.
type HTTPTransport struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewHTTPTransport targets the given base URL (e.g. "http://127.0.0.1:8080").
// Every request is bounded by timeout on top of whatever deadline the
// caller's context already carries.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{baseURL: baseURL, timeout: timeout, http: &http.Client{}}
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reqBody)
	if err != nil {
		return nil, errTransport("build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, errTransport("http request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errTransport("read response body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errTransport(fmt.Sprintf("non-OK HTTP status %d", resp.StatusCode), nil)
	}
	return data, nil
}

type wireInfo struct {
	Height        uint64 `json:"height"`
	NetworkHeight uint64 `json:"network_height"`
	Synced        bool   `json:"synced"`
}

// Info calls GET /info.
func (t *HTTPTransport) Info(ctx context.Context) (Info, error) {
	data, err := t.do(ctx, http.MethodGet, "/info", nil)
	if err != nil {
		return Info{}, err
	}
	var wi wireInfo
	if err := json.Unmarshal(data, &wi); err != nil {
		return Info{}, errTransport("decode /info response", err)
	}
	return Info{Height: wi.Height, NetworkHeight: wi.NetworkHeight, Synced: wi.Synced}, nil
}

type wireSyncRequest struct {
	BlockHashCheckpoints []string `json:"blockHashCheckpoints"`
	StartHeight          *uint64  `json:"startHeight,omitempty"`
	StartTimestamp       *uint64  `json:"startTimestamp,omitempty"`
	BlockCount           int      `json:"blockCount,omitempty"`
}

type wireOutput struct {
	Key               string  `json:"key"`
	Amount            uint64  `json:"amount"`
	GlobalOutputIndex *uint32 `json:"globalOutputIndex,omitempty"`
}

type wireInputValue struct {
	KeyOffsets []uint32 `json:"keyOffsets"`
}

type wireInput struct {
	Amount          uint64          `json:"amount"`
	KeyOffsets      []uint32        `json:"keyOffsets,omitempty"`
	Value           *wireInputValue `json:"value,omitempty"`
	TransactionHash string          `json:"transactionHash"`
	OutputIndex     uint32          `json:"outputIndex"`
	KeyImage        string          `json:"keyImage,omitempty"`
}

func (in wireInput) offsets() []uint32 {
	if in.Value != nil {
		return in.Value.KeyOffsets
	}
	return in.KeyOffsets
}

type wireTransaction struct {
	Hash                  string       `json:"hash"`
	Outputs               []wireOutput `json:"outputs,omitempty"`
	KeyOutputs            []wireOutput `json:"keyOutputs,omitempty"`
	Inputs                []wireInput  `json:"inputs,omitempty"`
	KeyInputs             []wireInput  `json:"keyInputs,omitempty"`
	TxPublicKey           string       `json:"txPublicKey,omitempty"`
	TransactionPublicKey  string       `json:"transactionPublicKey,omitempty"`
	UnlockTime            uint64       `json:"unlockTime"`
}

func (tx wireTransaction) outputs() []wireOutput {
	if tx.Outputs != nil {
		return tx.Outputs
	}
	return tx.KeyOutputs
}

func (tx wireTransaction) inputs() []wireInput {
	if tx.Inputs != nil {
		return tx.Inputs
	}
	return tx.KeyInputs
}

func (tx wireTransaction) pubKey() string {
	if tx.TxPublicKey != "" {
		return tx.TxPublicKey
	}
	return tx.TransactionPublicKey
}

type wireBlockBody struct {
	BlockHeight          uint64            `json:"blockHeight"`
	BlockHash            string            `json:"blockHash"`
	BlockTimestamp       uint64            `json:"blockTimestamp"`
	CoinbaseTX           *wireTransaction  `json:"coinbaseTX,omitempty"`
	CoinbaseTransaction  *wireTransaction  `json:"coinbaseTransaction,omitempty"`
	Transactions         []wireTransaction `json:"transactions"`
	StakingTX            []wireTransaction `json:"stakingTX,omitempty"`
}

func (b wireBlockBody) coinbase() *wireTransaction {
	if b.CoinbaseTX != nil {
		return b.CoinbaseTX
	}
	return b.CoinbaseTransaction
}

type wireSyncResponse struct {
	Status    string          `json:"status"`
	Items     []wireBlockBody `json:"items,omitempty"`
	NewBlocks []wireBlockBody `json:"newBlocks,omitempty"`
	Synced    *bool           `json:"synced,omitempty"`
	TopBlock  *struct {
		Hash   string `json:"hash"`
		Height uint64 `json:"height"`
	} `json:"topBlock,omitempty"`
}

func (r wireSyncResponse) blocks() []wireBlockBody {
	if r.Items != nil {
		return r.Items
	}
	return r.NewBlocks
}

func decodeHash(s string) (txmodel.Hash, error) {
	var h txmodel.Hash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		return h, fmt.Errorf("decode hash %q: invalid hex length", s)
	}
	copy(h[:], b)
	return h, nil
}

func decodeKey(s string) (txmodel.PublicKey, error) {
	var k txmodel.PublicKey
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(k) {
		return k, fmt.Errorf("decode key %q: invalid hex length", s)
	}
	copy(k[:], b)
	return k, nil
}

func translateTransaction(wt wireTransaction) (WireTransaction, error) {
	txHash, err := decodeHash(wt.Hash)
	if err != nil {
		return WireTransaction{}, errTransport("decode tx hash", err)
	}
	var pub txmodel.PublicKey
	if wt.pubKey() != "" {
		pub, err = decodeKey(wt.pubKey())
		if err != nil {
			return WireTransaction{}, errTransport("decode tx pubkey", err)
		}
	}

	out := WireTransaction{Hash: txHash, TxPubKey: pub, UnlockTime: wt.UnlockTime}
	for _, o := range wt.outputs() {
		key, err := decodeKey(o.Key)
		if err != nil {
			return WireTransaction{}, errTransport("decode output key", err)
		}
		out.Outputs = append(out.Outputs, WireOutput{Key: key, Amount: o.Amount, GlobalOutputIndex: o.GlobalOutputIndex})
	}
	for _, in := range wt.inputs() {
		parentHash, err := decodeHash(in.TransactionHash)
		if err != nil {
			return WireTransaction{}, errTransport("decode input tx hash", err)
		}
		out.Inputs = append(out.Inputs, WireInput{
			Amount:      in.Amount,
			KeyOffsets:  in.offsets(),
			TxHash:      parentHash,
			OutputIndex: in.OutputIndex,
		})
	}
	return out, nil
}

func translateBlock(wb wireBlockBody) (WireBlock, error) {
	blockHash, err := decodeHash(wb.BlockHash)
	if err != nil {
		return WireBlock{}, errTransport("decode block hash", err)
	}

	b := WireBlock{Height: wb.BlockHeight, Hash: blockHash, Timestamp: wb.BlockTimestamp}

	if cb := wb.coinbase(); cb != nil {
		t, err := translateTransaction(*cb)
		if err != nil {
			return WireBlock{}, err
		}
		b.CoinbaseTx = &t
	}
	for _, wt := range wb.Transactions {
		t, err := translateTransaction(wt)
		if err != nil {
			return WireBlock{}, err
		}
		b.Transactions = append(b.Transactions, t)
	}

	if len(wb.StakingTX) > 0 {
		b.StakingTxHashes = make(map[txmodel.Hash]struct{}, len(wb.StakingTX))
		for _, wt := range wb.StakingTX {
			h, err := decodeHash(wt.Hash)
			if err != nil {
				return WireBlock{}, errTransport("decode staking tx hash", err)
			}
			b.StakingTxHashes[h] = struct{}{}
		}
	}
	return b, nil
}

// GetWalletSyncData calls POST /getwalletsyncdata.
func (t *HTTPTransport) GetWalletSyncData(ctx context.Context, req WalletSyncRequest) (WalletSyncResponse, error) {
	wireReq := wireSyncRequest{
		StartHeight:    req.StartHeight,
		StartTimestamp: req.StartTimestamp,
		BlockCount:     req.BlockCount,
	}
	for _, cp := range req.Checkpoints {
		wireReq.BlockHashCheckpoints = append(wireReq.BlockHashCheckpoints, encodeCheckpointHash(cp.Hash))
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return WalletSyncResponse{}, errTransport("encode sync request", err)
	}

	data, err := t.do(ctx, http.MethodPost, "/getwalletsyncdata", body)
	if err != nil {
		return WalletSyncResponse{}, err
	}

	var wr wireSyncResponse
	if err := json.Unmarshal(data, &wr); err != nil {
		return WalletSyncResponse{}, errTransport("decode sync response", err)
	}
	if wr.Status != "" && wr.Status != "OK" {
		return WalletSyncResponse{}, coreerr.New(coreerr.KindTransport, fmt.Sprintf("sync data status %q", wr.Status))
	}

	resp := WalletSyncResponse{Status: wr.Status}
	if wr.Synced != nil {
		resp.Synced = *wr.Synced
	}
	if wr.TopBlock != nil {
		h, err := decodeHash(wr.TopBlock.Hash)
		if err != nil {
			return WalletSyncResponse{}, errTransport("decode topBlock hash", err)
		}
		resp.TopBlock = &TopBlock{Height: wr.TopBlock.Height, Hash: h}
	}
	for _, wb := range wr.blocks() {
		b, err := translateBlock(wb)
		if err != nil {
			return WalletSyncResponse{}, err
		}
		resp.Blocks = append(resp.Blocks, b)
	}
	return resp, nil
}

type wireSendRequest struct {
	TxAsHex string `json:"tx_as_hex"`
}

type wireSendResponse struct {
	Status          string `json:"status"`
	TransactionHash string `json:"transactionHash"`
	Error           string `json:"error,omitempty"`
}

// SendRawTransaction calls POST /sendrawtransaction. A non-OK status is
// surfaced as a transport-level success carrying the server's error
// string; callers (the wallet façade) classify it as Rejected.
func (t *HTTPTransport) SendRawTransaction(ctx context.Context, txHex string) (SendResult, error) {
	body, err := json.Marshal(wireSendRequest{TxAsHex: txHex})
	if err != nil {
		return SendResult{}, errTransport("encode send request", err)
	}

	data, err := t.do(ctx, http.MethodPost, "/sendrawtransaction", body)
	if err != nil {
		return SendResult{}, err
	}

	var wr wireSendResponse
	if err := json.Unmarshal(data, &wr); err != nil {
		return SendResult{}, errTransport("decode send response", err)
	}

	result := SendResult{Status: wr.Status, Error: wr.Error}
	if wr.TransactionHash != "" {
		h, err := decodeHash(wr.TransactionHash)
		if err != nil {
			return SendResult{}, errTransport("decode transactionHash", err)
		}
		result.TxHash = h
	}
	return result, nil
}

// WithTimeout returns a context derived from ctx bounded by d, matching the
// "each request carries a user-supplied timeout."
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
