package services

import (
	"sync"

	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/realtime"
)

func (s *ServiceSuite) TestCreateJob() {
	customer := s.customer()

	job := s.postJob(customer, 500)

	s.Equal(models.JobPending, job.Status)
	s.Equal(customer.ID, job.CustomerID)
	s.Nil(job.ProfessionalID)
	s.Equal("Fix the sink", job.Title)
	s.Equal(customer.ID, job.Customer.ID)
	s.Len(s.events.OfType(realtime.EventJobCreated), 1)
}

func (s *ServiceSuite) TestCreateJob_Validation() {
	customer := s.customer()

	tests := []struct {
		name  string
		input CreateJobInput
	}{
		{"blank title", CreateJobInput{Title: "  ", Description: "d", Category: "c", Location: "l", Budget: 10}},
		{"missing location", CreateJobInput{Title: "t", Description: "d", Category: "c", Budget: 10}},
		{"zero budget", CreateJobInput{Title: "t", Description: "d", Category: "c", Location: "l", Budget: 0}},
		{"negative budget", CreateJobInput{Title: "t", Description: "d", Category: "c", Location: "l", Budget: -5}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.svc.Jobs.Create(s.ctx, customer, tt.input)
			s.requireKind(err, apperrors.KindInvalidInput)
		})
	}

	var count int64
	s.db.Model(&models.Job{}).Count(&count)
	s.Zero(count)
}

func (s *ServiceSuite) TestCreateJob_ProfessionalForbidden() {
	_, err := s.svc.Jobs.Create(s.ctx, s.professional(), CreateJobInput{
		Title: "t", Description: "d", Category: "c", Location: "l", Budget: 10,
	})
	s.requireKind(err, apperrors.KindForbidden)
}

func (s *ServiceSuite) TestCreateJob_AdminOnBehalfOfCustomer() {
	admin := s.admin()
	customer := s.customer()
	in := CreateJobInput{Title: "t", Description: "d", Category: "c", Location: "l", Budget: 10}

	_, err := s.svc.Jobs.Create(s.ctx, admin, in)
	s.requireKind(err, apperrors.KindInvalidInput)

	in.CustomerID = &customer.ID
	job, err := s.svc.Jobs.Create(s.ctx, admin, in)
	s.Require().NoError(err)
	s.Equal(customer.ID, job.CustomerID)
}

// Two professionals race for the same job; the loser is told it was claimed
func (s *ServiceSuite) TestAcceptJob_SecondProfessionalConflicts() {
	customer := s.customer()
	p1, p2 := s.professional(), s.professional()
	job := s.postJob(customer, 500)

	accepted, err := s.svc.Jobs.Accept(s.ctx, p1, job.ID)
	s.Require().NoError(err)
	s.Equal(models.JobAccepted, accepted.Status)
	s.Require().NotNil(accepted.ProfessionalID)
	s.Equal(p1.ID, *accepted.ProfessionalID)
	s.NotNil(accepted.AcceptedAt)

	_, err = s.svc.Jobs.Accept(s.ctx, p2, job.ID)
	s.requireKind(err, apperrors.KindConflict)

	stored := s.reloadJob(job.ID)
	s.Equal(p1.ID, *stored.ProfessionalID)
	s.Equal(1, s.reloadUser(p1.ID).PendingJobs)
	s.Zero(s.reloadUser(p2.ID).PendingJobs)
}

func (s *ServiceSuite) TestAcceptJob_RejectsPendingOffers() {
	customer := s.customer()
	job := s.postJob(customer, 500)
	b1, b2 := s.professional(), s.professional()
	first, second := s.bid(b1, job, 450), s.bid(b2, job, 480)

	taker := s.professional()
	_, err := s.svc.Jobs.Accept(s.ctx, taker, job.ID)
	s.Require().NoError(err)

	for _, id := range []uint{first.ID, second.ID} {
		var stored models.Offer
		s.Require().NoError(s.db.First(&stored, id).Error)
		s.Equal(models.OfferRejected, stored.Status)
	}

	rejected := s.events.OfType(realtime.EventOfferRejected)
	s.Require().Len(rejected, 1)
	s.ElementsMatch([]uint{b1.ID, b2.ID}, rejected[0].Recipients)
	s.Equal("job_accepted", rejected[0].Payload["reason"])

	// a closed bid cannot take the job back from the professional who claimed it
	_, err = s.svc.Offers.Accept(s.ctx, customer, first.ID)
	s.requireKind(err, apperrors.KindInvalidState)
	s.Equal(taker.ID, *s.reloadJob(job.ID).ProfessionalID)
}

func (s *ServiceSuite) TestAcceptJob_ConcurrentCallsHaveSingleWinner() {
	customer := s.customer()
	job := s.postJob(customer, 300)

	const contenders = 5
	pros := make([]*models.User, contenders)
	for i := range pros {
		pros[i] = s.professional()
	}

	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i, pro := range pros {
		wg.Add(1)
		go func(i int, pro *models.User) {
			defer wg.Done()
			_, errs[i] = s.svc.Jobs.Accept(s.ctx, pro, job.ID)
		}(i, pro)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			s.Equal(-1, winner, "more than one professional won the job")
			winner = i
			continue
		}
		s.Equal(apperrors.KindConflict, apperrors.KindOf(err))
	}
	s.Require().NotEqual(-1, winner)

	stored := s.reloadJob(job.ID)
	s.Equal(models.JobAccepted, stored.Status)
	s.Equal(pros[winner].ID, *stored.ProfessionalID)
}

func (s *ServiceSuite) TestAcceptJob_Rules() {
	customer := s.customer()
	job := s.postJob(customer, 100)

	_, err := s.svc.Jobs.Accept(s.ctx, customer, job.ID)
	s.requireKind(err, apperrors.KindForbidden)

	_, err = s.svc.Jobs.Accept(s.ctx, s.professional(), 9999)
	s.requireKind(err, apperrors.KindNotFound)

	_, err = s.svc.Jobs.Cancel(s.ctx, customer, job.ID, CancelInput{})
	s.Require().NoError(err)
	_, err = s.svc.Jobs.Accept(s.ctx, s.professional(), job.ID)
	s.requireKind(err, apperrors.KindInvalidState)
}

func (s *ServiceSuite) TestHappyPath_StartCompleteCreditsProfessional() {
	customer, pro := s.customer(), s.professional()
	job := s.acceptedJob(customer, pro, 500)

	started, err := s.svc.Jobs.Start(s.ctx, pro, job.ID, []string{})
	s.Require().NoError(err)
	s.Equal(models.JobInProgress, started.Status)
	s.Empty(started.BeforePhotos)
	s.NotNil(started.StartedAt)

	completed, err := s.svc.Jobs.Complete(s.ctx, pro, job.ID, []string{"url1"})
	s.Require().NoError(err)
	s.Equal(models.JobCompleted, completed.Status)
	s.Equal([]string{"url1"}, []string(completed.AfterPhotos))
	s.NotNil(completed.CompletedAt)

	stored := s.reloadUser(pro.ID)
	s.InDelta(500, stored.EscrowBalance, 0.001)
	s.InDelta(500, stored.TotalEarnings, 0.001)
	s.Equal(1, stored.CompletedJobs)
	s.Zero(stored.PendingJobs)

	var earnings []models.Transaction
	s.Require().NoError(s.db.Where("user_id = ? AND type = ?", pro.ID, models.TransactionEarning).Find(&earnings).Error)
	s.Require().Len(earnings, 1)
	s.InDelta(500, earnings[0].Amount, 0.001)
	s.Equal(job.ID, *earnings[0].JobID)

	summary, err := s.svc.Wallet.Summary(s.ctx, pro)
	s.Require().NoError(err)
	s.InDelta(500, summary.Balance, 0.001)
}

func (s *ServiceSuite) TestStartJob_Rules() {
	customer, pro := s.customer(), s.professional()
	job := s.acceptedJob(customer, pro, 100)

	_, err := s.svc.Jobs.Start(s.ctx, s.professional(), job.ID, nil)
	s.requireKind(err, apperrors.KindForbidden)

	_, err = s.svc.Jobs.Start(s.ctx, customer, job.ID, nil)
	s.requireKind(err, apperrors.KindForbidden)

	_, err = s.svc.Jobs.Start(s.ctx, pro, job.ID, []string{"ok", " "})
	s.requireKind(err, apperrors.KindInvalidInput)

	_, err = s.svc.Jobs.Start(s.ctx, pro, job.ID, []string{"https://cdn.test/before.png"})
	s.Require().NoError(err)

	_, err = s.svc.Jobs.Start(s.ctx, pro, job.ID, nil)
	s.requireKind(err, apperrors.KindInvalidState)
}

func (s *ServiceSuite) TestCompleteJob_Rules() {
	customer, pro := s.customer(), s.professional()
	job := s.acceptedJob(customer, pro, 100)

	_, err := s.svc.Jobs.Complete(s.ctx, pro, job.ID, []string{"after"})
	s.requireKind(err, apperrors.KindInvalidState)

	_, err = s.svc.Jobs.Start(s.ctx, pro, job.ID, nil)
	s.Require().NoError(err)

	_, err = s.svc.Jobs.Complete(s.ctx, pro, job.ID, nil)
	s.requireKind(err, apperrors.KindInvalidInput)

	_, err = s.svc.Jobs.Complete(s.ctx, s.professional(), job.ID, []string{"after"})
	s.requireKind(err, apperrors.KindForbidden)

	s.Equal(models.JobInProgress, s.reloadJob(job.ID).Status)
	s.Zero(s.reloadUser(pro.ID).EscrowBalance)
}

func (s *ServiceSuite) TestRateJob_SecondRatingConflicts() {
	customer, pro := s.customer(), s.professional()
	job := s.completedJob(customer, pro, 200)
	comment := "great work"

	rated, review, err := s.svc.Jobs.Rate(s.ctx, customer, job.ID, RateInput{Rating: 5, Review: &comment})
	s.Require().NoError(err)
	s.Equal(models.JobRated, rated.Status)
	s.Equal(5, *rated.Rating)
	s.Equal(pro.ID, review.ProfessionalID)
	s.Equal("great work", *review.Comment)

	_, _, err = s.svc.Jobs.Rate(s.ctx, customer, job.ID, RateInput{Rating: 4})
	s.requireKind(err, apperrors.KindConflict)

	var reviews int64
	s.db.Model(&models.Review{}).Where("job_id = ?", job.ID).Count(&reviews)
	s.Equal(int64(1), reviews)
	s.InDelta(5, s.reloadUser(pro.ID).Rating, 0.001)
	s.Len(s.events.OfType(realtime.EventReviewCreated), 1)
}

func (s *ServiceSuite) TestRateJob_Rules() {
	customer, pro := s.customer(), s.professional()
	job := s.inProgressJob(customer, pro, 100)

	_, _, err := s.svc.Jobs.Rate(s.ctx, customer, job.ID, RateInput{Rating: 5})
	s.requireKind(err, apperrors.KindInvalidState)

	_, err = s.svc.Jobs.Complete(s.ctx, pro, job.ID, []string{"after"})
	s.Require().NoError(err)

	_, _, err = s.svc.Jobs.Rate(s.ctx, s.customer(), job.ID, RateInput{Rating: 5})
	s.requireKind(err, apperrors.KindForbidden)

	for _, rating := range []int{0, 6, -1} {
		_, _, err = s.svc.Jobs.Rate(s.ctx, customer, job.ID, RateInput{Rating: rating})
		s.requireKind(err, apperrors.KindInvalidInput)
	}

	s.Equal(models.JobCompleted, s.reloadJob(job.ID).Status)
}

// Once cancelled, no caller can move a job again
func (s *ServiceSuite) TestCancelledJobIsTerminal() {
	customer, pro := s.customer(), s.professional()
	job := s.acceptedJob(customer, pro, 100)
	_, err := s.svc.Jobs.Cancel(s.ctx, customer, job.ID, CancelInput{Reason: "changed my mind"})
	s.Require().NoError(err)

	callers := []*models.User{customer, pro, s.professional(), s.customer(), s.admin()}
	for _, caller := range callers {
		_, err = s.svc.Jobs.Cancel(s.ctx, caller, job.ID, CancelInput{})
		s.requireKind(err, apperrors.KindInvalidState)
		_, err = s.svc.Jobs.Complete(s.ctx, caller, job.ID, []string{"after"})
		s.requireKind(err, apperrors.KindInvalidState)
		_, _, err = s.svc.Jobs.Rate(s.ctx, caller, job.ID, RateInput{Rating: 5})
		s.requireKind(err, apperrors.KindInvalidState)
	}
	s.Equal(models.JobCancelled, s.reloadJob(job.ID).Status)
}

func (s *ServiceSuite) TestRatedJobIsTerminal() {
	customer, pro := s.customer(), s.professional()
	job := s.completedJob(customer, pro, 100)
	_, _, err := s.svc.Jobs.Rate(s.ctx, customer, job.ID, RateInput{Rating: 4})
	s.Require().NoError(err)

	for _, caller := range []*models.User{customer, pro, s.customer(), s.admin()} {
		_, err = s.svc.Jobs.Cancel(s.ctx, caller, job.ID, CancelInput{})
		s.requireKind(err, apperrors.KindInvalidState)
		_, err = s.svc.Jobs.Complete(s.ctx, caller, job.ID, []string{"after"})
		s.requireKind(err, apperrors.KindInvalidState)
		// a rated job already has its review, whoever asks
		_, _, err = s.svc.Jobs.Rate(s.ctx, caller, job.ID, RateInput{Rating: 5})
		s.requireKind(err, apperrors.KindConflict)
	}
	s.Equal(models.JobRated, s.reloadJob(job.ID).Status)
	s.InDelta(4.0, s.reloadUser(pro.ID).Rating, 0.0001)
}

func (s *ServiceSuite) TestCancelJob_RejectsPendingOffersAndUpdatesCounters() {
	customer, pro := s.customer(), s.professional()
	job := s.postJob(customer, 400)
	bidder := s.professional()
	offer, err := s.svc.Offers.Create(s.ctx, bidder, job.ID, CreateOfferInput{Price: 350})
	s.Require().NoError(err)

	// the bid stays pending while the job is still open
	s.Equal(models.OfferPending, offer.Status)

	cancelled, err := s.svc.Jobs.Cancel(s.ctx, customer, job.ID, CancelInput{Reason: " no longer needed ", Penalty: 25})
	s.Require().NoError(err)
	s.Equal(models.JobCancelled, cancelled.Status)
	s.Equal("no longer needed", *cancelled.CancelReason)
	s.InDelta(25, cancelled.CancelPenalty, 0.001)
	s.NotNil(cancelled.CancelledAt)

	var stored models.Offer
	s.Require().NoError(s.db.First(&stored, offer.ID).Error)
	s.Equal(models.OfferRejected, stored.Status)

	rejected := s.events.OfType(realtime.EventOfferRejected)
	s.Require().Len(rejected, 1)
	s.Equal([]uint{bidder.ID}, rejected[0].Recipients)

	// the assigned professional's counters move when their job is cancelled
	assigned := s.inProgressJob(customer, pro, 100)
	_, err = s.svc.Jobs.Cancel(s.ctx, pro, assigned.ID, CancelInput{})
	s.Require().NoError(err)
	stats := s.reloadUser(pro.ID)
	s.Zero(stats.PendingJobs)
	s.Equal(1, stats.CancelledJobs)
}

func (s *ServiceSuite) TestCancelJob_Rules() {
	customer, pro := s.customer(), s.professional()
	job := s.postJob(customer, 100)

	_, err := s.svc.Jobs.Cancel(s.ctx, s.customer(), job.ID, CancelInput{})
	s.requireKind(err, apperrors.KindForbidden)

	_, err = s.svc.Jobs.Cancel(s.ctx, customer, job.ID, CancelInput{Penalty: -1})
	s.requireKind(err, apperrors.KindInvalidInput)

	done := s.completedJob(customer, pro, 100)
	_, err = s.svc.Jobs.Cancel(s.ctx, customer, done.ID, CancelInput{})
	s.requireKind(err, apperrors.KindInvalidState)
}

func (s *ServiceSuite) TestDeleteJob() {
	customer, pro, admin := s.customer(), s.professional(), s.admin()

	open := s.postJob(customer, 100)
	_, err := s.svc.Offers.Create(s.ctx, pro, open.ID, CreateOfferInput{Price: 90})
	s.Require().NoError(err)

	s.requireKind(s.svc.Jobs.Delete(s.ctx, s.customer(), open.ID), apperrors.KindForbidden)
	s.Require().NoError(s.svc.Jobs.Delete(s.ctx, customer, open.ID))

	var offers int64
	s.db.Model(&models.Offer{}).Where("job_id = ?", open.ID).Count(&offers)
	s.Zero(offers)
	s.requireKind(s.svc.Jobs.Delete(s.ctx, customer, open.ID), apperrors.KindNotFound)

	active := s.acceptedJob(customer, pro, 100)
	s.requireKind(s.svc.Jobs.Delete(s.ctx, customer, active.ID), apperrors.KindInvalidState)

	s.Require().NoError(s.svc.Jobs.Delete(s.ctx, admin, active.ID))
	s.Zero(s.reloadUser(pro.ID).PendingJobs)
	s.Len(s.events.OfType(realtime.EventJobDeleted), 2)
}

func (s *ServiceSuite) TestDeleteJob_KeepsLedgerEntries() {
	customer, pro, admin := s.customer(), s.professional(), s.admin()
	job := s.completedJob(customer, pro, 250)

	s.Require().NoError(s.svc.Jobs.Delete(s.ctx, admin, job.ID))

	var earning models.Transaction
	s.Require().NoError(s.db.Where("user_id = ?", pro.ID).First(&earning).Error)
	s.Nil(earning.JobID)
	s.InDelta(250, earning.Amount, 0.001)
}

func (s *ServiceSuite) TestListJobs_Visibility() {
	c1, c2 := s.customer(), s.customer()
	pro, other := s.professional(), s.professional()

	open := s.postJob(c1, 100)
	mine := s.acceptedJob(c1, pro, 200)
	theirs := s.acceptedJob(c2, other, 300)
	bidOn := s.postJob(c2, 400)
	_, err := s.svc.Offers.Create(s.ctx, pro, bidOn.ID, CreateOfferInput{Price: 380})
	s.Require().NoError(err)
	_, err = s.svc.Jobs.Cancel(s.ctx, c2, bidOn.ID, CancelInput{})
	s.Require().NoError(err)

	ids := func(jobs []models.Job) []uint {
		out := make([]uint, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, j.ID)
		}
		return out
	}

	jobs, total, err := s.svc.Jobs.List(s.ctx, c1, JobFilter{})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.ElementsMatch([]uint{open.ID, mine.ID}, ids(jobs))

	jobs, total, err = s.svc.Jobs.List(s.ctx, pro, JobFilter{})
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.ElementsMatch([]uint{open.ID, mine.ID, bidOn.ID}, ids(jobs))

	jobs, _, err = s.svc.Jobs.List(s.ctx, s.admin(), JobFilter{})
	s.Require().NoError(err)
	s.Len(jobs, 4)

	jobs, total, err = s.svc.Jobs.List(s.ctx, s.admin(), JobFilter{Status: models.JobAccepted})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.ElementsMatch([]uint{mine.ID, theirs.ID}, ids(jobs))

	jobs, total, err = s.svc.Jobs.List(s.ctx, c1, JobFilter{Page: Page{Page: 2, Limit: 1}})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Require().Len(jobs, 1)
	s.Equal(open.ID, jobs[0].ID)

	_, _, err = s.svc.Jobs.List(s.ctx, c1, JobFilter{Status: "bogus"})
	s.requireKind(err, apperrors.KindInvalidInput)
}

func (s *ServiceSuite) TestGetJob_Visibility() {
	customer, pro := s.customer(), s.professional()
	job := s.acceptedJob(customer, pro, 100)

	_, err := s.svc.Jobs.Get(s.ctx, customer, job.ID)
	s.NoError(err)
	_, err = s.svc.Jobs.Get(s.ctx, pro, job.ID)
	s.NoError(err)
	_, err = s.svc.Jobs.Get(s.ctx, s.admin(), job.ID)
	s.NoError(err)

	_, err = s.svc.Jobs.Get(s.ctx, s.customer(), job.ID)
	s.requireKind(err, apperrors.KindForbidden)
	_, err = s.svc.Jobs.Get(s.ctx, s.professional(), job.ID)
	s.requireKind(err, apperrors.KindForbidden)

	open := s.postJob(customer, 50)
	_, err = s.svc.Jobs.Get(s.ctx, s.professional(), open.ID)
	s.NoError(err)
}

func (s *ServiceSuite) TestAuthorizePhotoUpload() {
	customer, pro := s.customer(), s.professional()
	job := s.postJob(customer, 100)

	_, err := s.svc.Jobs.AuthorizePhotoUpload(s.ctx, pro, job.ID)
	s.requireKind(err, apperrors.KindForbidden)

	_, err = s.svc.Jobs.Accept(s.ctx, pro, job.ID)
	s.Require().NoError(err)
	_, err = s.svc.Jobs.AuthorizePhotoUpload(s.ctx, pro, job.ID)
	s.NoError(err)
}

func (s *ServiceSuite) TestJobTransitionsNotifyParticipants() {
	customer, pro := s.customer(), s.professional()
	s.completedJob(customer, pro, 100)

	updates := s.events.OfType(realtime.EventJobUpdated)
	s.Require().Len(updates, 3)
	for _, evt := range updates {
		s.ElementsMatch([]uint{customer.ID, pro.ID}, evt.Recipients)
		s.False(evt.At.IsZero())
	}
	s.Equal(models.JobCompleted, updates[2].Payload["status"])
}
