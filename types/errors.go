package types

// StorageError is returned by the KCV and block storage layers
// (component A/B, spec §4.A/§4.B, §7).
type StorageError int

const (
	StorageOK StorageError = iota
	StorageNotFound
	StorageAlreadyExists
	StorageInvalidValue
	StorageBackendError
	StorageSerializationError
	StorageDataCorruption
)

func (e StorageError) Error() string {
	switch e {
	case StorageOK:
		return "ok"
	case StorageNotFound:
		return "storage: not found"
	case StorageAlreadyExists:
		return "storage: already exists"
	case StorageInvalidValue:
		return "storage: invalid value"
	case StorageBackendError:
		return "storage: backend error"
	case StorageSerializationError:
		return "storage: serialization error"
	case StorageDataCorruption:
		return "storage: data corruption"
	default:
		return "storage: unknown error"
	}
}

// ServerError is the application-level result code every broker
// operation returns, and the numeric value carried in the `result`
// field of a wire response (spec §4.D, §6, §7). Streaming codes
// (PartialContent, EmptyStream, EndOfStream) are not failures to the
// caller — they are control codes multiplexed onto the same field.
type ServerError uint16

const (
	Ok ServerError = iota
	ErrNotFound
	ErrAlreadyExists
	ErrInvalidRequest
	ErrInvalidSignature
	ErrEmptyStream
	ErrPartialContent
	ErrEndOfStream
	ErrExpired
	ErrBrokerError
	ErrClosing
	ErrAccessDenied
)

func (e ServerError) Error() string {
	switch e {
	case Ok:
		return "ok"
	case ErrNotFound:
		return "not found"
	case ErrAlreadyExists:
		return "already exists"
	case ErrInvalidRequest:
		return "invalid request"
	case ErrInvalidSignature:
		return "invalid signature"
	case ErrEmptyStream:
		return "empty stream"
	case ErrPartialContent:
		return "partial content"
	case ErrEndOfStream:
		return "end of stream"
	case ErrExpired:
		return "expired"
	case ErrBrokerError:
		return "broker error"
	case ErrClosing:
		return "closing"
	case ErrAccessDenied:
		return "access denied"
	default:
		return "unknown server error"
	}
}

// IsStreamControl reports whether e is a stream control code rather
// than a terminal failure (spec §4.D "Failure model").
func (e ServerError) IsStreamControl() bool {
	return e == ErrEmptyStream || e == ErrPartialContent || e == ErrEndOfStream
}

// FromStorageError maps a storage-layer error onto the matching
// server-level error (spec §7 "Storage ... Mapped to Server::NotFound
// etc.").
func FromStorageError(e StorageError) ServerError {
	switch e {
	case StorageNotFound:
		return ErrNotFound
	case StorageAlreadyExists:
		return ErrAlreadyExists
	case StorageInvalidValue:
		return ErrInvalidRequest
	default:
		return ErrBrokerError
	}
}

// ProtocolError covers malformed frames, wrong FSM state and bad
// signatures (spec §7 "Protocol"). Any ProtocolError closes the
// connection.
type ProtocolError int

const (
	ProtoOK ProtocolError = iota
	ProtoInvalidState
	ProtoInvalidSignature
	ProtoSerializationError
	ProtoAccessDenied
	ProtoNoiseHandshakeFailed
	ProtoWriteError
	ProtoSequenceRegression
	ProtoConnectionClosed
)

func (e ProtocolError) Error() string {
	switch e {
	case ProtoOK:
		return "ok"
	case ProtoInvalidState:
		return "protocol: invalid state"
	case ProtoInvalidSignature:
		return "protocol: invalid signature"
	case ProtoSerializationError:
		return "protocol: serialization error"
	case ProtoAccessDenied:
		return "protocol: access denied"
	case ProtoNoiseHandshakeFailed:
		return "protocol: noise handshake failed"
	case ProtoWriteError:
		return "protocol: write error"
	case ProtoSequenceRegression:
		return "protocol: sequence regression"
	case ProtoConnectionClosed:
		return "protocol: connection closed"
	default:
		return "protocol: unknown error"
	}
}
