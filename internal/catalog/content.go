package catalog

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/repository"
)

// Packages управляет туристическими пакетами и их программами.
type Packages struct {
	*Service[model.Package]
	itineraries *Service[model.PackageItinerary]
}

// NewPackages создаёт сервис пакетов.
func NewPackages(src repository.Source, audit *Audit, logger *zap.Logger) *Packages {
	itineraries := NewService(
		repository.NewTable[model.PackageItinerary](src, repository.TablePackageItinerary, logger),
		"package_itinerary", audit, logger,
	).Ordered(repository.Query{}.OrderBy("day_number", false))

	return &Packages{
		Service:     NewService(repository.NewTable[model.Package](src, repository.TablePackages, logger), "package", audit, logger),
		itineraries: itineraries,
	}
}

// Details возвращает пакет вместе с программой, упорядоченной по дням.
func (p *Packages) Details(ctx context.Context, id string) (*model.PackageDetails, error) {
	pkg, err := p.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	days, err := p.Itineraries(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.PackageDetails{Package: *pkg, Itineraries: days}, nil
}

// Itineraries возвращает программу пакета.
func (p *Packages) Itineraries(ctx context.Context, packageID string) ([]model.PackageItinerary, error) {
	return p.of(packageID).All(ctx)
}

// CreateItinerary добавляет день в программу пакета.
func (p *Packages) CreateItinerary(ctx context.Context, packageID string, it *model.PackageItinerary) ([]model.PackageItinerary, error) {
	it.PackageID = packageID
	return p.of(packageID).Create(ctx, it)
}

// UpdateItinerary изменяет день программы пакета.
func (p *Packages) UpdateItinerary(ctx context.Context, packageID, id string, it *model.PackageItinerary) ([]model.PackageItinerary, error) {
	it.PackageID = packageID
	return p.of(packageID).Update(ctx, id, it)
}

// DeleteItinerary удаляет день из программы пакета.
func (p *Packages) DeleteItinerary(ctx context.Context, packageID, id string) ([]model.PackageItinerary, error) {
	return p.of(packageID).Delete(ctx, id)
}

func (p *Packages) of(packageID string) *Service[model.PackageItinerary] {
	return p.itineraries.Scoped(repository.Eq("package_id", packageID))
}

var published = repository.Query{}.Where(repository.Eq("published", true)).OrderBy("created_at", true)

// Blog управляет записями блога.
type Blog struct {
	*Service[model.BlogPost]
}

// NewBlog создаёт сервис блога.
func NewBlog(src repository.Source, audit *Audit, logger *zap.Logger) *Blog {
	return &Blog{NewService(repository.NewTable[model.BlogPost](src, repository.TableBlogPosts, logger), "blog_post", audit, logger)}
}

// Published возвращает опубликованные записи.
func (b *Blog) Published(ctx context.Context) ([]model.BlogPost, error) {
	return b.List(ctx, published)
}

// PublishedPost возвращает опубликованную запись. Черновик считается ненайденным.
func (b *Blog) PublishedPost(ctx context.Context, id string) (*model.BlogPost, error) {
	post, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !post.Published {
		return nil, repository.ErrNotFound
	}
	return post, nil
}

// Create сохраняет запись, выводя slug из заголовка, если он не задан.
func (b *Blog) Create(ctx context.Context, post *model.BlogPost) ([]model.BlogPost, error) {
	if strings.TrimSpace(post.Slug) == "" {
		post.Slug = Slugify(post.Title)
	}
	return b.Service.Create(ctx, post)
}

// Update изменяет запись, выводя slug из заголовка, если он не задан.
func (b *Blog) Update(ctx context.Context, id string, post *model.BlogPost) ([]model.BlogPost, error) {
	if strings.TrimSpace(post.Slug) == "" {
		post.Slug = Slugify(post.Title)
	}
	return b.Service.Update(ctx, id, post)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify приводит заголовок к виду, пригодному для адреса.
func Slugify(title string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "-"), "-")
}

// KidsCenter управляет публикациями детского центра Umurage.
type KidsCenter struct {
	*Service[model.KidsCenterPost]
}

// NewKidsCenter создаёт сервис детского центра.
func NewKidsCenter(src repository.Source, audit *Audit, logger *zap.Logger) *KidsCenter {
	return &KidsCenter{NewService(repository.NewTable[model.KidsCenterPost](src, repository.TableKidsCenter, logger), "kids_center", audit, logger)}
}

// Published возвращает опубликованные записи.
func (k *KidsCenter) Published(ctx context.Context) ([]model.KidsCenterPost, error) {
	return k.List(ctx, published)
}

// NewGallery создаёт сервис галереи.
func NewGallery(src repository.Source, audit *Audit, logger *zap.Logger) *Service[model.GalleryItem] {
	return NewService(repository.NewTable[model.GalleryItem](src, repository.TableGallery, logger), "gallery", audit, logger)
}

// Testimonials управляет отзывами клиентов.
type Testimonials struct {
	*Service[model.Testimonial]
}

// NewTestimonials создаёт сервис отзывов.
func NewTestimonials(src repository.Source, audit *Audit, logger *zap.Logger) *Testimonials {
	return &Testimonials{NewService(repository.NewTable[model.Testimonial](src, repository.TableTestimonials, logger), "testimonial", audit, logger)}
}

// Approved возвращает одобренные отзывы.
func (t *Testimonials) Approved(ctx context.Context) ([]model.Testimonial, error) {
	return t.List(ctx, repository.Query{}.Where(repository.Eq("approved", true)).OrderBy("created_at", true))
}

// Submit сохраняет отзыв посетителя. Отзыв не показывается до одобрения.
func (t *Testimonials) Submit(ctx context.Context, item *model.Testimonial) (*model.Testimonial, error) {
	item.ID = ""
	item.Approved = false
	if err := prepare(item); err != nil {
		return nil, err
	}

	created, err := t.table.Create(ctx, item)
	if err != nil {
		return nil, err
	}
	t.audit.Info(ctx, "testimonial.submit", "testimonial submitted", map[string]any{"id": created.ID})
	return created, nil
}

// Advertisements управляет рекламными блоками.
type Advertisements struct {
	*Service[model.Advertisement]
	now func() time.Time
}

// NewAdvertisements создаёт сервис рекламы.
func NewAdvertisements(src repository.Source, audit *Audit, logger *zap.Logger) *Advertisements {
	return &Advertisements{
		Service: NewService(repository.NewTable[model.Advertisement](src, repository.TableAdvertisements, logger), "advertisement", audit, logger),
		now:     time.Now,
	}
}

// Running возвращает активные блоки, период показа которых включает текущий момент.
func (a *Advertisements) Running(ctx context.Context) ([]model.Advertisement, error) {
	items, err := a.List(ctx, repository.Query{}.Where(repository.Eq("active", true)).OrderBy("created_at", true))
	if err != nil {
		return nil, err
	}

	now := a.now()
	res := make([]model.Advertisement, 0, len(items))
	for _, ad := range items {
		if ad.Running(now) {
			res = append(res, ad)
		}
	}
	return res, nil
}
