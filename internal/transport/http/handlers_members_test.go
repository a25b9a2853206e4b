package httptransport

//go:generate mockgen -source=handlers_members.go -destination=mocks/members.go -package=mocks MemberService,TreatmentRecorder,PaymentApplier

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"mutuelle/internal/access"
	dirmodels "mutuelle/internal/directory/models"
	ledger "mutuelle/internal/ledger/models"
	ledgerservice "mutuelle/internal/ledger/service"
	"mutuelle/internal/platform/logger"
	"mutuelle/internal/subscription"
	"mutuelle/internal/transport/http/mocks"
	"mutuelle/internal/treatment"
	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
	"mutuelle/pkg/testutil"
)

type MemberHandlerSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	members    *mocks.MockMemberService
	treatments *mocks.MockTreatmentRecorder
	payments   *mocks.MockPaymentApplier
	router     chi.Router
	subject    access.Subject
	now        time.Time
	location   *time.Location
}

func TestMemberHandlerSuite(t *testing.T) {
	suite.Run(t, new(MemberHandlerSuite))
}

func (s *MemberHandlerSuite) SetupTest() {
	s.location = time.FixedZone("WAT", 3600)
	s.subject = access.Subject{OperatorID: 3, Scope: access.StructureScope{Structure: 4}}
	s.now = time.Date(2026, 4, 10, 9, 30, 0, 0, time.UTC)
	s.wire()
}

func (s *MemberHandlerSuite) SetupSubTest() {
	s.wire()
}

func (s *MemberHandlerSuite) wire() {
	s.ctrl = gomock.NewController(s.T())
	s.members = mocks.NewMockMemberService(s.ctrl)
	s.treatments = mocks.NewMockTreatmentRecorder(s.ctrl)
	s.payments = mocks.NewMockPaymentApplier(s.ctrl)
	s.router = chi.NewRouter()
	NewMemberHandler(s.members, s.treatments, s.payments, s.location, logger.Discard()).Register(s.router)
}

func (s *MemberHandlerSuite) send(req *http.Request) *http.Response {
	req = testutil.WithTime(testutil.WithSubject(req, s.subject), s.now)
	return testutil.DoRequest(s.router, req).Result()
}

func (s *MemberHandlerSuite) TestRecordTreatment() {
	t := s.T()

	testutil.Given(t, "a calendar day", func(t *testing.T) {
		day := time.Date(2026, 4, 9, 0, 0, 0, 0, s.location)
		s.treatments.EXPECT().
			Record(gomock.Any(), s.subject, treatment.Request{
				MemberID:    7,
				Kind:        id.TreatmentAmbulatory,
				DateText:    "2026-04-09",
				Description: "Consultation",
			}).
			Return(&ledgerservice.ConsumeResult{
				Treatment: ledger.Treatment{MemberID: 7, Kind: id.TreatmentAmbulatory, Date: day},
				Balance:   ledger.Balance{MemberID: 7, Active: true, HospitalizationsRemaining: 3, AmbulatoryRemaining: 4},
			}, nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/members/7/treatments", recordTreatmentRequest{
			Kind: "ambulatory", Date: "2026-04-09", Description: "Consultation",
		})
		rr := testutil.DoRequest(s.router, testutil.WithSubject(req, s.subject))

		testutil.Then(t, "the raw values reach the recorder and the treatment is created", func(t *testing.T) {
			s.Equal(http.StatusCreated, rr.Code)
			var res ledgerservice.ConsumeResult
			testutil.DecodeJSON(t, rr, &res)
			s.Equal(4, res.Balance.AmbulatoryRemaining)
		})
	})

	testutil.Given(t, "an exhausted quota", func(t *testing.T) {
		s.treatments.EXPECT().Record(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeQuotaExhausted, "no hospitalizations left"))

		req := testutil.NewJSONRequest(t, http.MethodPost, "/members/7/treatments", recordTreatmentRequest{
			Kind: "hospitalization", Date: "2026-04-09T08:00:00Z", Description: "Chirurgie",
		})
		rr := testutil.DoRequest(s.router, testutil.WithSubject(req, s.subject))

		testutil.Then(t, "the refusal is a conflict", func(t *testing.T) {
			s.Equal(http.StatusConflict, rr.Code)
			s.Equal("quota_exhausted", testutil.ErrorCode(t, rr))
		})
	})
}

func (s *MemberHandlerSuite) TestRecordTreatmentRejectsBadInput() {
	s.Run("malformed requests never reach the recorder", func() {
		s.treatments.EXPECT().Record(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		cases := map[string]*http.Request{
			"bad member id": testutil.NewJSONRequest(s.T(), http.MethodPost, "/members/abc/treatments", recordTreatmentRequest{
				Kind: "ambulatory", Date: "2026-04-09", Description: "x",
			}),
			"malformed body": testutil.NewRequestWithBody(http.MethodPost, "/members/7/treatments", `{"kind":`),
		}
		for name, req := range cases {
			resp := s.send(req)
			s.Equal(http.StatusBadRequest, resp.StatusCode, name)
		}
	})

	s.Run("kind and date are left to the recorder", func() {
		s.treatments.EXPECT().
			Record(gomock.Any(), s.subject, treatment.Request{
				MemberID: 7, Kind: "dental", DateText: "09/04/2026", Description: "x",
			}).
			Return(nil, dErrors.New(dErrors.CodeInvalidInput, "unknown treatment kind"))

		resp := s.send(testutil.NewJSONRequest(s.T(), http.MethodPost, "/members/7/treatments", recordTreatmentRequest{
			Kind: " dental ", Date: "09/04/2026", Description: "x",
		}))
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("an out-of-scope caller is refused whatever the body", func() {
		s.treatments.EXPECT().Record(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "out of scope"))

		resp := s.send(testutil.NewJSONRequest(s.T(), http.MethodPost, "/members/9/treatments", recordTreatmentRequest{
			Kind: "ambulatory", Date: "not a date", Description: "x",
		}))
		s.Equal(http.StatusForbidden, resp.StatusCode)
	})
}

func (s *MemberHandlerSuite) TestApplyPayment() {
	s.Run("takes the member from the URL", func() {
		s.payments.EXPECT().
			ApplyPayment(gomock.Any(), s.subject, subscription.PaymentRequest{MemberID: 7, Amount: 5000, Policy: ledger.RenewalTopUp}).
			Return(&ledger.Balance{MemberID: 7, Active: true, HospitalizationsRemaining: 3, AmbulatoryRemaining: 5}, nil)

		resp := s.send(testutil.NewJSONRequest(s.T(), http.MethodPost, "/members/7/payments", map[string]any{
			"amount": 5000, "renewal_policy": "top_up",
		}))
		s.Equal(http.StatusOK, resp.StatusCode)
	})

	s.Run("forbidden is passed through", func() {
		s.payments.EXPECT().ApplyPayment(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "role insufficient"))

		resp := s.send(testutil.NewJSONRequest(s.T(), http.MethodPost, "/members/7/payments", map[string]any{"amount": 5000}))
		s.Equal(http.StatusForbidden, resp.StatusCode)
	})
}

func (s *MemberHandlerSuite) TestHistoryFilter() {
	s.Run("defaults to six payments and no month", func() {
		s.members.EXPECT().
			MemberHistory(gomock.Any(), s.subject, id.MemberID(7), ledger.HistoryFilter{LastPayments: 6}).
			Return(&ledger.History{}, nil)

		resp := s.send(testutil.NewJSONRequest(s.T(), http.MethodGet, "/members/7/treatments", nil))
		s.Equal(http.StatusOK, resp.StatusCode)
	})

	s.Run("month without year uses the current plan year", func() {
		s.members.EXPECT().
			MemberHistory(gomock.Any(), s.subject, id.MemberID(7), ledger.HistoryFilter{
				Month:        ledger.Month{Year: 2026, Month: time.March},
				LastPayments: 2,
			}).
			Return(&ledger.History{}, nil)

		resp := s.send(testutil.NewJSONRequest(s.T(), http.MethodGet, "/members/7/treatments?month=3&payments=2", nil))
		s.Equal(http.StatusOK, resp.StatusCode)
	})

	s.Run("non-numeric query is rejected", func() {
		resp := s.send(testutil.NewJSONRequest(s.T(), http.MethodGet, "/members/7/treatments?month=mars", nil))
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}

func (s *MemberHandlerSuite) TestReads() {
	s.members.EXPECT().GetMember(gomock.Any(), s.subject, id.MemberID(7)).
		Return(&dirmodels.Member{ID: 7, Name: "Aminata", ZoneID: 1, StructureID: 4}, nil)
	s.members.EXPECT().MemberBalance(gomock.Any(), s.subject, id.MemberID(8)).
		Return(nil, dErrors.New(dErrors.CodeForbidden, "out of scope"))
	s.members.EXPECT().ListMembers(gomock.Any(), s.subject, dirmodels.MemberFilter{StructureID: 4}).
		Return(nil, nil)

	s.Equal(http.StatusOK, s.send(testutil.NewJSONRequest(s.T(), http.MethodGet, "/members/7", nil)).StatusCode)
	s.Equal(http.StatusForbidden, s.send(testutil.NewJSONRequest(s.T(), http.MethodGet, "/members/8/balance", nil)).StatusCode)
	s.Equal(http.StatusOK, s.send(testutil.NewJSONRequest(s.T(), http.MethodGet, "/members?structure_id=4", nil)).StatusCode)
}

func (s *MemberHandlerSuite) TestMissingSubjectIsUnauthorized() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/members/7", nil))
	s.Equal(http.StatusUnauthorized, rr.Code)
}
