package domain

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type CuppingFormType string

const (
	CuppingFormSCA    CuppingFormType = "sca"
	CuppingFormSimple CuppingFormType = "simple"
)

func (f CuppingFormType) Valid() bool {
	return f == CuppingFormSCA || f == CuppingFormSimple
}

type CuppingSessionStatus string

const (
	CuppingSessionActive    CuppingSessionStatus = "active"
	CuppingSessionCompleted CuppingSessionStatus = "completed"
)

// CuppingSession is either solo (RoomID nil) or attached to a cupping room.
type CuppingSession struct {
	ID          uuid.UUID            `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	RoomID      *uuid.UUID           `json:"roomId" gorm:"type:uuid;index"`
	HostID      uuid.UUID            `json:"hostId" gorm:"type:uuid;not null;index"`
	Name        string               `json:"name" gorm:"type:varchar(80);not null"`
	FormType    CuppingFormType      `json:"formType" gorm:"type:varchar(10);not null"`
	Status      CuppingSessionStatus `json:"status" gorm:"type:varchar(10);not null;default:'active'"`
	CreatedAt   time.Time            `json:"createdAt"`
	CompletedAt *time.Time           `json:"completedAt"`

	Samples []*CuppingSample `json:"samples,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Host    *UserProfile     `json:"-" gorm:"foreignKey:HostID;constraint:OnDelete:CASCADE"`
	Room    *Room            `json:"-" gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
}

type CuppingSample struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SessionID uuid.UUID `json:"sessionId" gorm:"type:uuid;not null;uniqueIndex:idx_session_sample"`
	Number    int       `json:"number" gorm:"not null;uniqueIndex:idx_session_sample"`
	Name      string    `json:"name" gorm:"type:varchar(80);not null"`
	Notes     string    `json:"notes" gorm:"not null;default:''"`
	CreatedAt time.Time `json:"createdAt"`
}

type CuppingScore struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SessionID   uuid.UUID       `json:"sessionId" gorm:"type:uuid;not null;index"`
	SampleID    uuid.UUID       `json:"sampleId" gorm:"type:uuid;not null;uniqueIndex:idx_sample_score"`
	ProfileID   uuid.UUID       `json:"profileId" gorm:"type:uuid;not null;uniqueIndex:idx_sample_score"`
	FormType    CuppingFormType `json:"formType" gorm:"type:varchar(10);not null"`
	Payload     datatypes.JSON  `json:"payload" gorm:"type:jsonb;not null"`
	TotalScore  float64         `json:"totalScore" gorm:"not null"`
	SubmittedAt time.Time       `json:"submittedAt"`

	Sample  *CuppingSample `json:"sample,omitempty" gorm:"foreignKey:SampleID;constraint:OnDelete:CASCADE"`
	Profile *UserProfile   `json:"profile,omitempty" gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE"`
}

const (
	SCAMinScore  = 6.0
	SCAMaxScore  = 10.0
	SCAScoreStep = 0.25
	SCACups      = 5
	SCAMaxDefect = 5

	taintPoints   = 2
	faultPoints   = 4
	cupFlagPoints = 2
)

// SCAScore is the Specialty Coffee Association 100-point form. Intensity
// descriptors are recorded but never scored.
type SCAScore struct {
	Fragrance  float64 `json:"fragrance"`
	Flavor     float64 `json:"flavor"`
	Aftertaste float64 `json:"aftertaste"`
	Acidity    float64 `json:"acidity"`
	Body       float64 `json:"body"`
	Balance    float64 `json:"balance"`
	Overall    float64 `json:"overall"`

	Uniformity [SCACups]bool `json:"uniformity"`
	CleanCup   [SCACups]bool `json:"cleanCup"`
	Sweetness  [SCACups]bool `json:"sweetness"`

	AcidityIntensity int `json:"acidityIntensity"`
	BodyIntensity    int `json:"bodyIntensity"`

	TaintCups      int `json:"taintCups"`
	TaintIntensity int `json:"taintIntensity"`
	FaultCups      int `json:"faultCups"`
	FaultIntensity int `json:"faultIntensity"`
}

func (s *SCAScore) attributes() []float64 {
	return []float64{s.Fragrance, s.Flavor, s.Aftertaste, s.Acidity, s.Body, s.Balance, s.Overall}
}

func (s *SCAScore) Validate() error {
	for _, v := range s.attributes() {
		if v < SCAMinScore || v > SCAMaxScore {
			return ErrInvalidScore
		}
		if steps := v / SCAScoreStep; math.Abs(steps-math.Round(steps)) > 1e-9 {
			return ErrInvalidScore
		}
	}
	for _, v := range []int{s.AcidityIntensity, s.BodyIntensity} {
		if v != 0 && (v < 1 || v > 5) {
			return ErrInvalidScore
		}
	}
	if err := validateDefect(s.TaintCups, s.TaintIntensity); err != nil {
		return err
	}
	return validateDefect(s.FaultCups, s.FaultIntensity)
}

// validateDefect requires an intensity whenever defective cups are reported.
func validateDefect(cups, intensity int) error {
	if cups < 0 || cups > SCACups || intensity < 0 || intensity > SCAMaxDefect {
		return ErrInvalidScore
	}
	if cups > 0 && intensity == 0 {
		return ErrInvalidScore
	}
	return nil
}

// Total = sum of the seven attributes + 2 per true cup flag
// - 2 x taint cups x taint intensity - 4 x fault cups x fault intensity.
func (s *SCAScore) Total() float64 {
	total := 0.0
	for _, v := range s.attributes() {
		total += v
	}
	flags := 0
	for _, cups := range [][SCACups]bool{s.Uniformity, s.CleanCup, s.Sweetness} {
		for _, ok := range cups {
			if ok {
				flags++
			}
		}
	}
	total += float64(cupFlagPoints * flags)
	total -= float64(taintPoints * s.TaintCups * s.TaintIntensity)
	total -= float64(faultPoints * s.FaultCups * s.FaultIntensity)
	return total
}

// SimpleScore is the five-star form.
type SimpleScore struct {
	Aroma   int `json:"aroma"`
	Flavor  int `json:"flavor"`
	Acidity int `json:"acidity"`
	Body    int `json:"body"`
	Overall int `json:"overall"`
}

func (s *SimpleScore) stars() []int {
	return []int{s.Aroma, s.Flavor, s.Acidity, s.Body, s.Overall}
}

func (s *SimpleScore) Validate() error {
	for _, v := range s.stars() {
		if v < 1 || v > 5 {
			return ErrInvalidScore
		}
	}
	return nil
}

// Total is the mean star rating rounded to 2 decimals.
func (s *SimpleScore) Total() float64 {
	sum := 0
	stars := s.stars()
	for _, v := range stars {
		sum += v
	}
	return RoundTo2(float64(sum) / float64(len(stars)))
}

func RoundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ScoreCuppingPayload validates a raw form payload and returns its total
// along with the normalized JSON to persist.
func ScoreCuppingPayload(form CuppingFormType, raw json.RawMessage) (float64, datatypes.JSON, error) {
	switch form {
	case CuppingFormSCA:
		var s SCAScore
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, nil, ErrInvalidScore
		}
		if err := s.Validate(); err != nil {
			return 0, nil, err
		}
		data, err := json.Marshal(s)
		if err != nil {
			return 0, nil, err
		}
		return s.Total(), datatypes.JSON(data), nil
	case CuppingFormSimple:
		var s SimpleScore
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, nil, ErrInvalidScore
		}
		if err := s.Validate(); err != nil {
			return 0, nil, err
		}
		data, err := json.Marshal(s)
		if err != nil {
			return 0, nil, err
		}
		return s.Total(), datatypes.JSON(data), nil
	default:
		return 0, nil, ErrInvalidFormType
	}
}
