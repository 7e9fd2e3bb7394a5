package models

import "time"

// DefaultTrialDays is the trial length granted at registration.
const DefaultTrialDays = 1

// User is a registered account.
type User struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	Country         string     `json:"country"`
	WhatsApp        *string    `json:"whatsapp"`
	TrialStartDate  time.Time  `json:"trialStartDate"`
	TrialDays       int        `json:"trialDays"`
	IsSubscribed    bool       `json:"isSubscribed"`
	SubscriptionEnd *time.Time `json:"subscriptionEnd"`
	IsSuspended     bool       `json:"isSuspended"`
	SuspendReason   *string    `json:"suspendReason"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// TrialEnd returns when the user's trial expires. A zero TrialDays counts as
// one day.
func (u User) TrialEnd() time.Time {
	days := u.TrialDays
	if days <= 0 {
		days = DefaultTrialDays
	}
	return u.TrialStartDate.Add(time.Duration(days) * 24 * time.Hour)
}

// TrialActive reports whether the trial is still running at now.
func (u User) TrialActive(now time.Time) bool {
	return now.Before(u.TrialEnd())
}

// SubscriptionActive reports whether a subscription covers now.
func (u User) SubscriptionActive(now time.Time) bool {
	if !u.IsSubscribed {
		return false
	}
	return u.SubscriptionEnd == nil || now.Before(*u.SubscriptionEnd)
}

// HasAccess reports whether the user may watch at now.
func (u User) HasAccess(now time.Time) bool {
	if u.IsSuspended {
		return false
	}
	return u.SubscriptionActive(now) || u.TrialActive(now)
}

// UserStats summarises the user base for the back-office dashboard.
type UserStats struct {
	TotalUsers        int `json:"totalUsers"`
	SubscribedUsers   int `json:"subscribedUsers"`
	TrialUsers        int `json:"trialUsers"`
	ExpiredTrialUsers int `json:"expiredTrialUsers"`
	SuspendedUsers    int `json:"suspendedUsers"`
}

// ComputeUserStats buckets users at now. Subscribed and suspended users are
// never counted as trial or expired-trial users.
func ComputeUserStats(users []User, now time.Time) UserStats {
	s := UserStats{TotalUsers: len(users)}
	for _, u := range users {
		if u.IsSubscribed {
			s.SubscribedUsers++
		}
		if u.IsSuspended {
			s.SuspendedUsers++
		}
		if u.IsSubscribed || u.IsSuspended {
			continue
		}
		if u.TrialActive(now) {
			s.TrialUsers++
		} else {
			s.ExpiredTrialUsers++
		}
	}
	return s
}
