package services

import (
	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/models"
)

// The aggregate rating is the mean of every review the professional received
func (s *ServiceSuite) TestRatingIsMeanOfReviews() {
	customer, pro := s.customer(), s.professional()
	for _, rating := range []int{5, 3} {
		job := s.completedJob(customer, pro, 100)
		_, _, err := s.svc.Jobs.Rate(s.ctx, customer, job.ID, RateInput{Rating: rating})
		s.Require().NoError(err)
	}

	stored := s.reloadUser(pro.ID)
	s.InDelta(4.0, stored.Rating, 0.0001)
	s.Equal(2, stored.ReviewCount)

	job := s.completedJob(s.customer(), pro, 100)
	var owner models.User
	s.Require().NoError(s.db.First(&owner, job.CustomerID).Error)
	_, _, err := s.svc.Jobs.Rate(s.ctx, &owner, job.ID, RateInput{Rating: 2})
	s.Require().NoError(err)

	stored = s.reloadUser(pro.ID)
	s.InDelta(10.0/3.0, stored.Rating, 0.0001)
	s.Equal(3, stored.ReviewCount)
}

// ratedJob completes a job for pro and has its owner rate it
func (s *ServiceSuite) ratedJob(owner, pro *models.User, rating int) *models.Job {
	job := s.completedJob(owner, pro, 100)
	_, _, err := s.svc.Jobs.Rate(s.ctx, owner, job.ID, RateInput{Rating: rating})
	s.Require().NoError(err)
	return job
}

func (s *ServiceSuite) TestRatingRecomputedWhenJobDeleted() {
	admin, pro := s.admin(), s.professional()
	high := s.ratedJob(s.customer(), pro, 5)
	s.ratedJob(s.customer(), pro, 1)
	s.InDelta(3.0, s.reloadUser(pro.ID).Rating, 0.0001)

	s.Require().NoError(s.svc.Jobs.Delete(s.ctx, admin, high.ID))

	stored := s.reloadUser(pro.ID)
	s.InDelta(1.0, stored.Rating, 0.0001)
	s.Equal(1, stored.ReviewCount)
}

func (s *ServiceSuite) TestRatingRecomputedWhenReviewerDeleted() {
	admin, pro := s.admin(), s.professional()
	generous, harsh := s.customer(), s.customer()
	s.ratedJob(generous, pro, 5)
	s.ratedJob(harsh, pro, 1)

	s.Require().NoError(s.svc.Users.Delete(s.ctx, admin, generous.ID))

	stored := s.reloadUser(pro.ID)
	s.InDelta(1.0, stored.Rating, 0.0001)
	s.Equal(1, stored.ReviewCount)

	s.Require().NoError(s.svc.Users.Delete(s.ctx, admin, harsh.ID))

	stored = s.reloadUser(pro.ID)
	s.Zero(stored.Rating)
	s.Zero(stored.ReviewCount)
}

func (s *ServiceSuite) TestListReviews() {
	customer, pro := s.customer(), s.professional()
	first := s.completedJob(customer, pro, 100)
	second := s.completedJob(customer, pro, 100)
	comment := "tidy and fast"
	_, _, err := s.svc.Jobs.Rate(s.ctx, customer, first.ID, RateInput{Rating: 4})
	s.Require().NoError(err)
	_, _, err = s.svc.Jobs.Rate(s.ctx, customer, second.ID, RateInput{Rating: 5, Review: &comment})
	s.Require().NoError(err)

	reviews, total, err := s.svc.Reviews.ListByProfessional(s.ctx, pro.ID, Page{})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Require().Len(reviews, 2)
	s.Equal(second.ID, reviews[0].JobID)
	s.Require().NotNil(reviews[0].Customer)
	s.Equal(customer.ID, reviews[0].Customer.ID)

	reviews, total, err = s.svc.Reviews.ListByProfessional(s.ctx, pro.ID, Page{Page: 2, Limit: 1})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Require().Len(reviews, 1)
	s.Equal(first.ID, reviews[0].JobID)

	_, _, err = s.svc.Reviews.ListByProfessional(s.ctx, customer.ID, Page{})
	s.requireKind(err, apperrors.KindNotFound)

	byJob, err := s.svc.Reviews.ListByJob(s.ctx, second.ID)
	s.Require().NoError(err)
	s.Require().Len(byJob, 1)
	s.Equal("tidy and fast", *byJob[0].Comment)

	_, err = s.svc.Reviews.ListByJob(s.ctx, 9999)
	s.requireKind(err, apperrors.KindNotFound)
}
