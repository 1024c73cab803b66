package store

import (
	"sync"

	"github.com/google/uuid"
	"github.com/mcclellann/carlot/pkg/models"
)

// CachedStorage is a read-through cache for cars and contracts in front of another
// Storage. Every write to a cached entity invalidates it; other calls pass through.
// Cached values are copied on the way in and out so callers cannot mutate the cache.
// A read only fills the cache if no invalidation happened while it was in flight.
type CachedStorage struct {
	Storage

	mu        sync.RWMutex
	gen       uint64
	cars      map[uuid.UUID]models.Car
	carList   map[models.CarStatus][]models.Car
	contracts map[uuid.UUID]models.InstallmentContract
}

// NewCachedStorage wraps next.
func NewCachedStorage(next Storage) *CachedStorage {
	return &CachedStorage{
		Storage:   next,
		cars:      make(map[uuid.UUID]models.Car),
		carList:   make(map[models.CarStatus][]models.Car),
		contracts: make(map[uuid.UUID]models.InstallmentContract),
	}
}

// Invalidate drops everything cached.
func (c *CachedStorage) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cars = make(map[uuid.UUID]models.Car)
	c.carList = make(map[models.CarStatus][]models.Car)
	c.contracts = make(map[uuid.UUID]models.InstallmentContract)
}

func (c *CachedStorage) invalidateCar(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	delete(c.cars, id)
	c.carList = make(map[models.CarStatus][]models.Car)
}

func (c *CachedStorage) GetCar(id uuid.UUID) (*models.Car, error) {
	c.mu.RLock()
	car, ok := c.cars[id]
	gen := c.gen
	c.mu.RUnlock()
	if ok {
		return &car, nil
	}

	fetched, err := c.Storage.GetCar(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.gen == gen {
		c.cars[id] = *fetched
	}
	c.mu.Unlock()
	return fetched, nil
}

func (c *CachedStorage) ListCars(filter CarFilter) ([]*models.Car, error) {
	c.mu.RLock()
	cached, ok := c.carList[filter.Status]
	gen := c.gen
	c.mu.RUnlock()
	if ok {
		out := make([]*models.Car, len(cached))
		for i := range cached {
			car := cached[i]
			out[i] = &car
		}
		return out, nil
	}

	cars, err := c.Storage.ListCars(filter)
	if err != nil {
		return nil, err
	}
	snapshot := make([]models.Car, len(cars))
	for i, car := range cars {
		snapshot[i] = *car
	}
	c.mu.Lock()
	if c.gen == gen {
		c.carList[filter.Status] = snapshot
	}
	c.mu.Unlock()
	return cars, nil
}

func (c *CachedStorage) CreateCar(car *models.Car) error {
	defer c.invalidateCar(car.ID)
	return c.Storage.CreateCar(car)
}

func (c *CachedStorage) UpdateCar(car *models.Car) error {
	defer c.invalidateCar(car.ID)
	return c.Storage.UpdateCar(car)
}

func (c *CachedStorage) DeleteCar(id uuid.UUID) error {
	defer c.invalidateCar(id)
	return c.Storage.DeleteCar(id)
}

func (c *CachedStorage) RecordSale(sale *models.Sale, contract *models.InstallmentContract, car *models.Car) error {
	defer c.invalidateCar(car.ID)
	if contract != nil {
		defer c.invalidateContract(contract.ID)
	}
	return c.Storage.RecordSale(sale, contract, car)
}

func (c *CachedStorage) GetContract(id uuid.UUID) (*models.InstallmentContract, error) {
	c.mu.RLock()
	contract, ok := c.contracts[id]
	gen := c.gen
	c.mu.RUnlock()
	if ok {
		return &contract, nil
	}

	fetched, err := c.Storage.GetContract(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.gen == gen {
		c.contracts[id] = *fetched
	}
	c.mu.Unlock()
	return fetched, nil
}

func (c *CachedStorage) CreateContract(contract *models.InstallmentContract) error {
	defer c.invalidateContract(contract.ID)
	return c.Storage.CreateContract(contract)
}

func (c *CachedStorage) UpdateContract(contract *models.InstallmentContract) error {
	defer c.invalidateContract(contract.ID)
	return c.Storage.UpdateContract(contract)
}

func (c *CachedStorage) invalidateContract(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	delete(c.contracts, id)
}
