package dashboard

import "github.com/openfolio/folio/internal/domains"

// Stats is the combined per-domain count record for one pass. Domains the
// plan does not grant stay at their zero value, so the presenter renders a
// uniform locked/zero state without special cases.
type Stats struct {
	TotalBooks     int   `json:"totalBooks"`
	PublishedBooks int   `json:"publishedBooks"`
	TotalViews     int64 `json:"totalViews"`

	BlogPosts      int `json:"blogPosts"`
	PublishedPosts int `json:"publishedPosts"`

	Events         int `json:"events"`
	UpcomingEvents int `json:"upcomingEvents"`

	Awards         int `json:"awards"`
	FeaturedAwards int `json:"featuredAwards"`

	FAQEntries    int `json:"faqEntries"`
	PublishedFAQs int `json:"publishedFaqs"`

	Subscribers          int `json:"subscribers"`
	ConfirmedSubscribers int `json:"confirmedSubscribers"`

	ContactSubmissions int `json:"contactSubmissions"`
	UnreadSubmissions  int `json:"unreadSubmissions"`
}

// apply folds one domain's stat pair into the combined record.
func (s *Stats) apply(domain string, stat domains.DomainStat) {
	switch domain {
	case domains.DomainBooks:
		s.TotalBooks = stat.Total
		s.PublishedBooks = stat.Secondary
	case domains.DomainBlog:
		s.BlogPosts = stat.Total
		s.PublishedPosts = stat.Secondary
	case domains.DomainEvents:
		s.Events = stat.Total
		s.UpcomingEvents = stat.Secondary
	case domains.DomainAwards:
		s.Awards = stat.Total
		s.FeaturedAwards = stat.Secondary
	case domains.DomainFAQ:
		s.FAQEntries = stat.Total
		s.PublishedFAQs = stat.Secondary
	case domains.DomainNewsletter:
		s.Subscribers = stat.Total
		s.ConfirmedSubscribers = stat.Secondary
	case domains.DomainContact:
		s.ContactSubmissions = stat.Total
		s.UnreadSubmissions = stat.Secondary
	}
}
