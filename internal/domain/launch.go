package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Los límites de nombre y símbolo son en bytes UTF-8, no en caracteres.
const (
	MaxNameLen          = 32
	MaxSymbolLen        = 10
	MaxDiscoverySeconds = 3600
	MaxPredictSeconds   = 86400
)

// Identity es la identidad opaca de un participante (en la práctica, una
// dirección hex verificada por el adapter de auth).
type Identity string

// PredictState existe solo a partir de la fase Predict.
type PredictState struct {
	MedianMcap uint64
	StartedAt  int64
}

// SettlementState existe solo cuando el lanzamiento está liquidado.
type SettlementState struct {
	Value     uint64
	SettledAt int64
}

// Launch es el registro mutable de un lanzamiento.
//
// Predict y Settlement son nil hasta que la fase correspondiente empieza; un
// lanzamiento en Discovery no tiene mediana que leer. TotalVotes, TotalLocked y
// TotalDistributed solo crecen. Version lo incrementa el store en cada update
// (compare-and-set).
type Launch struct {
	ID               string
	Authority        Identity
	Name             string
	Symbol           string
	TotalSupply      uint64
	Phase            Phase
	DiscoveryEnd     int64
	PredictEnd       int64
	TotalVotes       uint32
	TotalLocked      uint64
	TotalDistributed uint64
	Predict          *PredictState
	Settlement       *SettlementState
	CreatedAt        int64
	Version          int64
}

// MedianMcap devuelve la mediana fijada al entrar en Predict.
func (l Launch) MedianMcap() (uint64, bool) {
	if l.Predict == nil {
		return 0, false
	}
	return l.Predict.MedianMcap, true
}

// SettlementValue devuelve el valor de liquidación, si ya existe.
func (l Launch) SettlementValue() (uint64, bool) {
	if l.Settlement == nil {
		return 0, false
	}
	return l.Settlement.Value, true
}

// ParticipantPool es el tope de tokens para apostadores de este lanzamiento.
func (l Launch) ParticipantPool() uint64 {
	return ParticipantPool(l.TotalSupply)
}

// CreateLaunchInput son los parámetros de create. Las duraciones van en segundos.
type CreateLaunchInput struct {
	Authority         Identity `validate:"required"`
	Name              string   `validate:"maxbytes=32"`
	Symbol            string   `validate:"maxbytes=10"`
	TotalSupply       uint64
	DiscoveryDuration int64 `validate:"gt=0,lte=3600"`
	PredictDuration   int64 `validate:"gt=0,lte=86400"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// max cuenta runas; maxbytes cuenta len(s).
	if err := v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= n
	}); err != nil {
		panic(err)
	}
	return v
}

// NewLaunch valida el input y construye el lanzamiento en Discovery.
// discovery_end = now + discoveryDuration; predict_end = discovery_end + predictDuration.
func NewLaunch(id string, in CreateLaunchInput, now int64) (Launch, error) {
	const op = "create"
	if err := validate.Struct(in); err != nil {
		return Launch{}, validationError(op, err)
	}
	if id == "" {
		return Launch{}, newErr(KindValidation, op, "launch id is required")
	}

	total := in.DiscoveryDuration + in.PredictDuration
	if now > math.MaxInt64-total {
		return Launch{}, newErr(KindArithmeticOverflow, op, "now %d + durations %d", now, total)
	}
	discoveryEnd := now + in.DiscoveryDuration

	return Launch{
		ID:           id,
		Authority:    in.Authority,
		Name:         in.Name,
		Symbol:       in.Symbol,
		TotalSupply:  in.TotalSupply,
		Phase:        PhaseDiscovery,
		DiscoveryEnd: discoveryEnd,
		PredictEnd:   discoveryEnd + in.PredictDuration,
		CreatedAt:    now,
	}, nil
}

// validationError traduce los errores de validator a un único ErrValidation
// con los campos que fallaron.
func validationError(op string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return newErr(KindValidation, op, "%v", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			fields = append(fields, fmt.Sprintf("%s must be %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			fields = append(fields, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return newErr(KindValidation, op, "%s", strings.Join(fields, "; "))
}

// advance mueve la fase a su única sucesora legal.
func (l *Launch) advance(op string, from Phase) error {
	if l.Phase != from {
		return newErr(KindWrongPhase, op, "launch %s is %s, want %s", l.ID, l.Phase, from)
	}
	next, ok := l.Phase.next()
	if !ok {
		return newErr(KindWrongPhase, op, "launch %s has no phase after %s", l.ID, l.Phase)
	}
	l.Phase = next
	return nil
}

// StartPredict cierra Discovery y fija la mediana calculada fuera del core.
func (l *Launch) StartPredict(medianMcap uint64, now int64) error {
	const op = "advance_to_predict"
	if l.Phase != PhaseDiscovery {
		return newErr(KindWrongPhase, op, "launch %s is %s", l.ID, l.Phase)
	}
	if now < l.DiscoveryEnd {
		return newErr(KindPhaseNotEnded, op, "discovery ends at %d, now %d", l.DiscoveryEnd, now)
	}
	if medianMcap == 0 {
		return newErr(KindValidation, op, "median_mcap must be > 0")
	}
	if err := l.advance(op, PhaseDiscovery); err != nil {
		return err
	}
	l.Predict = &PredictState{MedianMcap: medianMcap, StartedAt: now}
	return nil
}

// Settle cierra Predict y fija el valor de liquidación.
func (l *Launch) Settle(value uint64, now int64) error {
	const op = "settle"
	if l.Phase != PhasePredict {
		return newErr(KindWrongPhase, op, "launch %s is %s", l.ID, l.Phase)
	}
	if now < l.PredictEnd {
		return newErr(KindPhaseNotEnded, op, "predict ends at %d, now %d", l.PredictEnd, now)
	}
	if value == 0 {
		return newErr(KindValidation, op, "settlement_value must be > 0")
	}
	if err := l.advance(op, PhasePredict); err != nil {
		return err
	}
	l.Settlement = &SettlementState{Value: value, SettledAt: now}
	return nil
}

// AuthorizeAuthority comprueba que el caller es la autoridad del lanzamiento.
func (l Launch) AuthorizeAuthority(op string, caller Identity) error {
	if caller == "" || caller != l.Authority {
		return newErr(KindNotAuthorized, op, "%q is not the authority of launch %s", caller, l.ID)
	}
	return nil
}
