package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Order sides as the exchange contract encodes them.
const (
	SideBuy  = 0
	SideSell = 1
)

// Signature types. A proxy or safe signature has the funder as maker and the
// EOA as signer.
const (
	SignatureEOA        = 0
	SignaturePolyProxy  = 1
	SignatureGnosisSafe = 2
)

// exchangeAddresses are the CTF Exchange contracts orders are signed for.
var exchangeAddresses = map[int]common.Address{
	137:   common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"),
	80002: common.HexToAddress("0xdFE02Eb6733538f8Ea35D585af8DE5958AD99E40"),
}

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	authDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	exchangeDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	clobAuthTypeHash = ethcrypto.Keccak256(
		[]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"),
	)

	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

// clobAuthMessage is the fixed attestation text of a ClobAuth message.
const clobAuthMessage = "This message attests that I control the given wallet"

// OrderPayload is a limit order in the exchange's signed form. Amounts are
// six-decimal integer strings.
type OrderPayload struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`
	SignatureType int    `json:"signatureType"`
}

// Signer signs CLOB auth messages and orders with the wallet key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int
	authSep    []byte
	orderSep   []byte
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the target chain ID (137 for Polygon mainnet, 80002 for Amoy testnet).
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	exchange, ok := exchangeAddresses[chainID]
	if !ok {
		return nil, fmt.Errorf("crypto/signer: no exchange contract for chain %d", chainID)
	}
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
		authSep: ethcrypto.Keccak256(concatBytes(
			authDomainTypeHash,
			ethcrypto.Keccak256([]byte("ClobAuthDomain")),
			ethcrypto.Keccak256([]byte("1")),
			uint256(big.NewInt(int64(chainID))),
		)),
		orderSep: ethcrypto.Keccak256(concatBytes(
			exchangeDomainTypeHash,
			ethcrypto.Keccak256([]byte("Polymarket CTF Exchange")),
			ethcrypto.Keccak256([]byte("1")),
			uint256(big.NewInt(int64(chainID))),
			common.LeftPadBytes(exchange.Bytes(), 32),
		)),
	}, nil
}

// Address returns the EOA derived from the private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID returns the chain orders are signed for.
func (s *Signer) ChainID() int {
	return s.chainID
}

// SignAuthMessage signs the ClobAuth message that L1 endpoints (API key
// derivation) require.
func (s *Signer) SignAuthMessage(address string, timestamp, nonce int64) (string, error) {
	addr := common.HexToAddress(address)
	structHash := ethcrypto.Keccak256(concatBytes(
		clobAuthTypeHash,
		common.LeftPadBytes(addr.Bytes(), 32),
		ethcrypto.Keccak256([]byte(fmt.Sprintf("%d", timestamp))),
		uint256(big.NewInt(nonce)),
		ethcrypto.Keccak256([]byte(clobAuthMessage)),
	))
	return s.signDigest(eip712Hash(s.authSep, structHash))
}

// SignOrder signs an order for the CTF Exchange.
func (s *Signer) SignOrder(order OrderPayload) (string, error) {
	structHash, err := orderStructHash(order)
	if err != nil {
		return "", err
	}
	return s.signDigest(eip712Hash(s.orderSep, structHash))
}

// RecoverOrderSigner returns the address that produced sig over order.
func (s *Signer) RecoverOrderSigner(order OrderPayload, sig string) (common.Address, error) {
	structHash, err := orderStructHash(order)
	if err != nil {
		return common.Address{}, err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil || len(raw) != 65 {
		return common.Address{}, fmt.Errorf("crypto/signer: malformed signature")
	}
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(eip712Hash(s.orderSep, structHash), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// eip712Hash computes keccak256("\x19\x01" || domainSeparator || structHash).
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, domainSep, structHash))
}

// signDigest returns the 65-byte r || s || v signature, hex encoded, with v
// in {27, 28}.
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func orderStructHash(o OrderPayload) ([]byte, error) {
	fields := []struct {
		name, value string
	}{
		{"salt", o.Salt},
		{"tokenId", o.TokenID},
		{"makerAmount", o.MakerAmount},
		{"takerAmount", o.TakerAmount},
		{"expiration", o.Expiration},
		{"nonce", o.Nonce},
		{"feeRateBps", o.FeeRateBps},
	}
	nums := make(map[string]*big.Int, len(fields))
	for _, f := range fields {
		n, ok := new(big.Int).SetString(f.value, 10)
		if !ok {
			return nil, fmt.Errorf("crypto/signer: invalid %s %q", f.name, f.value)
		}
		nums[f.name] = n
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return nil, fmt.Errorf("crypto/signer: invalid side %d", o.Side)
	}

	return ethcrypto.Keccak256(concatBytes(
		orderTypeHash,
		uint256(nums["salt"]),
		common.LeftPadBytes(common.HexToAddress(o.Maker).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Signer).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Taker).Bytes(), 32),
		uint256(nums["tokenId"]),
		uint256(nums["makerAmount"]),
		uint256(nums["takerAmount"]),
		uint256(nums["expiration"]),
		uint256(nums["nonce"]),
		uint256(nums["feeRateBps"]),
		uint256(big.NewInt(int64(o.Side))),
		uint256(big.NewInt(int64(o.SignatureType))),
	)), nil
}

// uint256 returns the 32-byte big-endian ABI encoding of n.
func uint256(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
