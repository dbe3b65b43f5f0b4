package lnd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
	macaroon "gopkg.in/macaroon.v2"

	"github.com/chriszackpinto/galoy/internal/ledger"
)

// Config for the lnd gRPC connection.
type Config struct {
	GRPCAddr     string
	TLSCertPath  string
	MacaroonPath string
}

// GRPCClient implements Client against lnd's router RPC.
type GRPCClient struct {
	conn   *grpc.ClientConn
	router routerrpc.RouterClient
	pubkey string
}

// NewGRPCClient dials the node and resolves its identity pubkey.
func NewGRPCClient(ctx context.Context, cfg Config) (*GRPCClient, error) {
	tlsCreds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load lnd tls cert: %w", err)
	}

	macCred, err := newMacaroonCredential(cfg.MacaroonPath)
	if err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(cfg.GRPCAddr,
		grpc.WithTransportCredentials(tlsCreds),
		grpc.WithPerRPCCredentials(macCred),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial lnd: %w", err)
	}

	info, err := lnrpc.NewLightningClient(conn).GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to query node info: %w", err)
	}

	return &GRPCClient{
		conn:   conn,
		router: routerrpc.NewRouterClient(conn),
		pubkey: info.IdentityPubkey,
	}, nil
}

// Close releases the underlying connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// Pubkey returns the node's identity pubkey.
func (c *GRPCClient) Pubkey() string {
	return c.pubkey
}

// LookupPayment returns the current status of an outbound payment. The first
// tracking event carries the full payment state, including in-flight, so the
// stream is read exactly once.
func (c *GRPCClient) LookupPayment(ctx context.Context, pubkey string, hash ledger.PaymentHash) (*PaymentLookup, error) {
	if pubkey != c.pubkey {
		return nil, fmt.Errorf("%w: %s", ErrNoNodeForPubkey, pubkey)
	}

	hashBytes, err := hex.DecodeString(string(hash))
	if err != nil {
		return nil, fmt.Errorf("invalid payment hash %q: %w", hash, err)
	}

	stream, err := c.router.TrackPaymentV2(ctx, &routerrpc.TrackPaymentRequest{
		PaymentHash:       hashBytes,
		NoInflightUpdates: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to track payment: %w", err)
	}

	payment, err := stream.Recv()
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to read payment status: %w", err)
	}

	return lookupFromPayment(payment), nil
}

func lookupFromPayment(p *lnrpc.Payment) *PaymentLookup {
	switch p.Status {
	case lnrpc.Payment_SUCCEEDED:
		details := &ConfirmedDetails{RoundedUpFee: roundedUpFee(p.FeeMsat)}
		if preimage := p.PaymentPreimage; revealed(preimage) {
			details.RevealedPreImage = preimage
		}
		return &PaymentLookup{Status: PaymentStatusSettled, ConfirmedDetails: details}
	case lnrpc.Payment_FAILED:
		return &PaymentLookup{Status: PaymentStatusFailed}
	case lnrpc.Payment_IN_FLIGHT:
		return &PaymentLookup{Status: PaymentStatusInFlight}
	default:
		return &PaymentLookup{Status: PaymentStatusPending}
	}
}

// roundedUpFee converts a millisatoshi fee to whole satoshis, rounding up so
// the books never understate what the network charged.
func roundedUpFee(feeMsat int64) ledger.BtcAmount {
	if feeMsat <= 0 {
		return 0
	}
	return ledger.BtcAmount((feeMsat + 999) / 1000)
}

// revealed filters the zero preimage some nodes report before the proof is
// known.
func revealed(preimage string) bool {
	return preimage != "" && strings.Trim(preimage, "0") != ""
}

// newMacaroonCredential loads and validates the admin macaroon, returning
// per-RPC credentials that attach it to every call.
func newMacaroonCredential(path string) (macaroonCredential, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return macaroonCredential{}, fmt.Errorf("failed to read macaroon: %w", err)
	}

	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(raw); err != nil {
		return macaroonCredential{}, fmt.Errorf("failed to parse macaroon: %w", err)
	}

	return macaroonCredential{hexMacaroon: hex.EncodeToString(raw)}, nil
}

type macaroonCredential struct {
	hexMacaroon string
}

func (c macaroonCredential) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"macaroon": c.hexMacaroon}, nil
}

func (c macaroonCredential) RequireTransportSecurity() bool { return true }
