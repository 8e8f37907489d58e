package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type ErrorKind int

const (
	// Transient 는 메시지를 다시 큐에 넣어 재시도한다.
	Transient ErrorKind = iota
	// Permanent 는 실패 사유를 아이템에 기록하고 메시지를 버린다.
	Permanent
)

func (k ErrorKind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// ProcessError 는 컨슈머 경계 아래의 모든 실패를 두 갈래로 분류한 결과다.
type ProcessError struct {
	Kind ErrorKind
	// Op 는 실패한 단계 이름이다(fetch, store, summarize 등).
	Op string
	// LastModel 은 요약 단계에서 마지막으로 시도한 모델이다.
	LastModel string
	Err       error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s %s failure: %v", e.Kind, e.Op, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

func transient(op string, err error) *ProcessError {
	return &ProcessError{Kind: Transient, Op: op, Err: err}
}

func permanent(op string, err error) *ProcessError {
	return &ProcessError{Kind: Permanent, Op: op, Err: err}
}

// storeFailure 는 저장소 오류를 분류한다. 무결성 제약 위반(SQLSTATE 23xxx)만 영구 실패이고
// 연결 끊김이나 타임아웃은 재시도한다.
func storeFailure(op string, err error) *ProcessError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23" {
		return permanent(op, err)
	}
	return transient(op, err)
}

// AsProcessError 는 분류되지 않은 오류를 재시도 대상으로 본다.
func AsProcessError(err error) *ProcessError {
	if err == nil {
		return nil
	}
	var pe *ProcessError
	if errors.As(err, &pe) {
		return pe
	}
	return transient("process", err)
}
