package s3

import "context"

func NewClient(bucket Bucket) (Client, error) {
	b, err := NewBasicClient(bucket)
	if err != nil {
		return nil, err
	}
	return NewClientFromBasic(b), nil
}

func NewClientFromBasic(basicClient BasicClient) Client {
	return &client{
		BasicClient: basicClient,
	}
}

type client struct {
	BasicClient
}

func (s *client) Move(ctx context.Context, src, dst string) error {
	data, err := s.Get(ctx, src)
	if err != nil {
		return err
	}
	if err = s.Put(ctx, dst, data); err != nil {
		return err
	}
	return s.Delete(ctx, src)
}
