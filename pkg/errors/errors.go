// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// cockroachdb/errors をラップし、パイプラインの各段階（特徴量生成・探索・学習・推論）で
// 構造化されたエラー情報を返します。
package errors

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("estateml-warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は警告ハンドラを設定します。
// UnmappedCategoryWarning などの非致命的な診断の出力先を制御できます。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// UnmappedCategoryWarning は参照テーブルに存在しない値がフォールバックラベルに
// 置き換えられたことを示す警告です。致命的ではありません。
type UnmappedCategoryWarning struct {
	Column   string
	Fallback string
	Count    int
}

func (w *UnmappedCategoryWarning) Error() string {
	return fmt.Sprintf("%d value(s) in column %q not found in lookup table, assigned %q", w.Count, w.Column, w.Fallback)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UnmappedCategoryWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("column", w.Column).
		Str("fallback", w.Fallback).
		Int("count", w.Count).
		Str("type", "UnmappedCategoryWarning")
}

// NewUnmappedCategoryWarning は新しいUnmappedCategoryWarningを作成します。
func NewUnmappedCategoryWarning(column, fallback string, count int) *UnmappedCategoryWarning {
	return &UnmappedCategoryWarning{Column: column, Fallback: fallback, Count: count}
}

// SkippedRecordWarning は入力行が検証に失敗し読み飛ばされたことを示す警告です。
type SkippedRecordWarning struct {
	Line   int
	Reason string
}

func (w *SkippedRecordWarning) Error() string {
	return fmt.Sprintf("skipped record at line %d: %s", w.Line, w.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *SkippedRecordWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Int("line", w.Line).
		Str("reason", w.Reason).
		Str("type", "SkippedRecordWarning")
}

// NewSkippedRecordWarning は新しいSkippedRecordWarningを作成します。
func NewSkippedRecordWarning(line int, reason string) *SkippedRecordWarning {
	return &SkippedRecordWarning{Line: line, Reason: reason}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` や `Transform` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("estateml: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("estateml: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", e.axisName()).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError は入力パラメータや入力レコードの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("estateml: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
// 例えば、空のテスト分割で評価しようとした場合など。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("estateml: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError は機械学習モデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("estateml: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("estateml: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// FeatureOrderError は学習時と推論時で特徴量の列構成（名前・順序）が一致しない場合のエラーです。
// モデルはカテゴリ特徴量を列番号で参照するため、黙って続行すると予測値が壊れます。
type FeatureOrderError struct {
	Phase    string
	Expected []string
	Got      []string
	Position int // 最初に食い違った列番号（長さ不一致のみの場合は短い方の長さ）
}

func (e *FeatureOrderError) Error() string {
	var want, got string
	if e.Position < len(e.Expected) {
		want = e.Expected[e.Position]
	}
	if e.Position < len(e.Got) {
		got = e.Got[e.Position]
	}
	return fmt.Sprintf("estateml: feature column mismatch in %s phase at position %d: expected %q, got %q (expected %d columns, got %d)",
		e.Phase, e.Position, want, got, len(e.Expected), len(e.Got))
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *FeatureOrderError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("phase", e.Phase).
		Int("position", e.Position).
		Str("expected", strings.Join(e.Expected, ",")).
		Str("got", strings.Join(e.Got, ",")).
		Str("type", "FeatureOrderError")
}

// NewFeatureOrderError は新しいFeatureOrderErrorを作成し、スタックトレースを付与します。
func NewFeatureOrderError(phase string, expected, got []string, position int) error {
	return errors.WithStack(&FeatureOrderError{Phase: phase, Expected: expected, Got: got, Position: position})
}

// TrialError はハイパーパラメータ探索の1試行が失敗したことを示すエラーです。
// 探索全体は中断されず、試行は最悪スコアで記録されます。
type TrialError struct {
	Number int
	Err    error
}

func (e *TrialError) Error() string {
	return fmt.Sprintf("estateml: trial %d failed: %v", e.Number, e.Err)
}

func (e *TrialError) Unwrap() error {
	return e.Err
}

// NewTrialError は新しいTrialErrorを作成し、スタックトレースを付与します。
func NewTrialError(number int, err error) error {
	return errors.WithStack(&TrialError{Number: number, Err: err})
}

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
// NaN、Inf を検出します。
type NumericalInstabilityError struct {
	Operation string    // 発生した操作（例: "boosting.loss"）
	Values    []float64 // 問題のある値
	Iteration int       // 発生したイテレーション番号
}

func (e *NumericalInstabilityError) Error() string {
	parts := make([]string, 0, len(e.Values))
	for i, v := range e.Values {
		if i >= 5 {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, fmt.Sprintf("%.6g", v))
	}
	return fmt.Sprintf("estateml: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, strings.Join(parts, ", "))
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	return errors.WithStack(&NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
	})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrNoCompletedTrials は探索で完了した試行が一つもない場合のエラーです。
	ErrNoCompletedTrials = New("no completed trials")

	// ErrRunNotFound は指定した名前の実行記録が存在しない場合のエラーです。
	ErrRunNotFound = New("run not found")
)
